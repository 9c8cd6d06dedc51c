package asset

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const (
	codeBrand       = "HP"
	codeDigits      = 4
	categoryCodeLen = 3
)

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	nonWordOrHyphen = regexp.MustCompile(`[^\w-]+`)
	hyphenRun       = regexp.MustCompile(`-{2,}`)
	nonLetter       = regexp.MustCompile(`[^A-Z]+`)
)

var categoryCodes = map[string]string{
	"animals":    "ANM",
	"nature":     "NAT",
	"holidays":   "HOL",
	"vehicles":   "VEH",
	"food":       "FOD",
	"fantasy":    "FAN",
	"people":     "PPL",
	"patterns":   "PAT",
	"seasons":    "SEA",
	"sports":     "SPT",
	"characters": "CHR",
	"education":  "EDU",
}

// Slugify lower-cases and trims the title, turns whitespace runs into
// hyphens and drops anything that is not a word character or hyphen.
// Slugs are not unique.
func Slugify(title string) string {
	s := strings.TrimSpace(strings.ToLower(title))
	s = whitespaceRun.ReplaceAllString(s, "-")
	s = nonWordOrHyphen.ReplaceAllString(s, "")
	s = hyphenRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// CategoryCode maps a category name to its three-letter code. Unknown
// categories use their first three ASCII letters, padded with X.
func CategoryCode(category string) string {
	if code, ok := categoryCodes[strings.ToLower(strings.TrimSpace(category))]; ok {
		return code
	}
	letters := nonLetter.ReplaceAllString(strings.ToUpper(category), "")
	for len(letters) < categoryCodeLen {
		letters += "X"
	}
	return letters[:categoryCodeLen]
}

// CodePrefix returns the asset code prefix for a category, e.g. "HP-ANM-".
func CodePrefix(category string) string {
	return codeBrand + "-" + CategoryCode(category) + "-"
}

func FormatCode(prefix string, n int64) string {
	return fmt.Sprintf("%s%0*d", prefix, codeDigits, n)
}

type Derivative string

const (
	DerivativeThumbnail Derivative = "thumbnail"
	DerivativePreview   Derivative = "preview"
	DerivativeDocument  Derivative = "document"
)

// Derivatives lists what a generate_all job produces, in upload order.
var Derivatives = []Derivative{DerivativeThumbnail, DerivativePreview, DerivativeDocument}

func (d Derivative) Bucket() Bucket {
	if d == DerivativeDocument {
		return BucketPrivate
	}
	return BucketPublic
}

// CanonicalKey is the only key a worker may write for a derivative.
func CanonicalKey(code string, d Derivative) string {
	switch d {
	case DerivativeThumbnail:
		return "thumbnails/" + code + ".png"
	case DerivativePreview:
		return "previews/" + code + ".png"
	case DerivativeDocument:
		return "documents/" + code + ".pdf"
	default:
		return ""
	}
}

// Pointer returns the storage pointer backing a derivative.
func (a *Asset) Pointer(d Derivative) *string {
	switch d {
	case DerivativeThumbnail:
		return a.ThumbnailKey
	case DerivativePreview:
		return a.PreviewKey
	case DerivativeDocument:
		return a.DocumentKey
	default:
		return nil
	}
}

// Upload slots accepted from the admin form.
type UploadSlot string

const (
	SlotThumbnail UploadSlot = "thumbnail"
	SlotDocument  UploadSlot = "pdf"
	SlotSource    UploadSlot = "source"
)

func (s UploadSlot) Bucket() Bucket {
	if s == SlotThumbnail {
		return BucketPublic
	}
	return BucketPrivate
}

// UploadKey derives the object key for an admin upload, keeping the
// original file extension for thumbnails and sources.
func UploadKey(code string, slot UploadSlot, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	switch slot {
	case SlotThumbnail:
		if ext == "" {
			ext = ".png"
		}
		return "thumbnails/" + code + ext
	case SlotDocument:
		return "documents/" + code + ".pdf"
	case SlotSource:
		if ext == "" {
			ext = ".svg"
		}
		return "sources/" + code + ext
	default:
		return ""
	}
}
