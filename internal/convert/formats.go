// Package convert implements the format conversion engine. All office and
// image conversions normalize through PDF as the intermediate, so each
// backend only has to speak format→pdf and pdf→format.
package convert

import "strings"

// Format is a normalized lowercase file extension.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatDOC  Format = "doc"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatPPTX Format = "pptx"
	FormatPPT  Format = "ppt"
	FormatODT  Format = "odt"
	FormatODS  Format = "ods"
	FormatODP  Format = "odp"
	FormatHTML Format = "html"
	FormatTXT  Format = "txt"
	FormatCSV  Format = "csv"
	FormatJPG  Format = "jpg"
	FormatPNG  Format = "png"
	FormatTIFF Format = "tiff"
)

// Normalize maps aliases and case onto canonical formats.
func Normalize(s string) Format {
	f := Format(strings.ToLower(strings.TrimPrefix(s, ".")))
	switch f {
	case "jpeg":
		return FormatJPG
	case "htm":
		return FormatHTML
	case "tif":
		return FormatTIFF
	case "text":
		return FormatTXT
	}
	return f
}

var officeFormats = map[Format]bool{
	FormatDOCX: true, FormatDOC: true,
	FormatXLSX: true, FormatXLS: true,
	FormatPPTX: true, FormatPPT: true,
	FormatODT: true, FormatODS: true, FormatODP: true,
	FormatHTML: true, FormatTXT: true, FormatCSV: true,
}

var imageFormats = map[Format]bool{
	FormatJPG: true, FormatPNG: true, FormatTIFF: true,
}

// IsOffice reports whether the format routes through the office backend.
func IsOffice(f Format) bool { return officeFormats[f] }

// IsImage reports whether the format routes through the raster backend.
func IsImage(f Format) bool { return imageFormats[f] }

// Known reports whether the format is one the engine recognizes at all.
func Known(f Format) bool {
	return f == FormatPDF || IsOffice(f) || IsImage(f)
}

var mimeTypes = map[Format]string{
	FormatPDF:  "application/pdf",
	FormatDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	FormatDOC:  "application/msword",
	FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	FormatXLS:  "application/vnd.ms-excel",
	FormatPPTX: "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	FormatPPT:  "application/vnd.ms-powerpoint",
	FormatODT:  "application/vnd.oasis.opendocument.text",
	FormatODS:  "application/vnd.oasis.opendocument.spreadsheet",
	FormatODP:  "application/vnd.oasis.opendocument.presentation",
	FormatHTML: "text/html",
	FormatTXT:  "text/plain",
	FormatCSV:  "text/csv",
	FormatJPG:  "image/jpeg",
	FormatPNG:  "image/png",
	FormatTIFF: "image/tiff",
}

// MimeType returns the MIME type for a format, defaulting to octet-stream.
func MimeType(f Format) string {
	if mt, ok := mimeTypes[f]; ok {
		return mt
	}
	return "application/octet-stream"
}
