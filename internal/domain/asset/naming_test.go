package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Cozy Capybara", "cozy-capybara"},
		{"  Spooky   Halloween Cat!  ", "spooky-halloween-cat"},
		{"Mom & Me -- Hearts", "mom-me-hearts"},
		{"snake_case stays", "snake_case-stays"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.title))
		})
	}
}

func TestCategoryCode(t *testing.T) {
	assert.Equal(t, "ANM", CategoryCode("Animals"))
	assert.Equal(t, "ANM", CategoryCode("  animals "))
	assert.Equal(t, "DIN", CategoryCode("Dinosaurs"))
	assert.Equal(t, "OXX", CategoryCode("o2"))
}

func TestFormatCode(t *testing.T) {
	assert.Equal(t, "HP-ANM-0001", FormatCode(CodePrefix("Animals"), 1))
	assert.Equal(t, "HP-ANM-12345", FormatCode(CodePrefix("Animals"), 12345))
	assert.Regexp(t, `^HP-ANM-\d{4}$`, FormatCode(CodePrefix("Animals"), 42))
}

func TestWrittenObjects_SkipsSentinels(t *testing.T) {
	thumb := "thumbnails/HP-ANM-0001.png"
	doc := SentinelPending
	source := "sources/HP-ANM-0001.svg"
	draft := SentinelDraft

	a := &Asset{ThumbnailKey: &thumb, DocumentKey: &doc, SourceKey: &source, PreviewKey: &draft}

	assert.Equal(t, []StoredObject{
		{Bucket: BucketPublic, Key: thumb},
		{Bucket: BucketPrivate, Key: source},
	}, a.WrittenObjects())
}

func TestPublishReady(t *testing.T) {
	thumb := "thumbnails/a.png"
	doc := "documents/a.pdf"
	pending := SentinelPending

	assert.True(t, (&Asset{}).PublishReady())
	assert.True(t, (&Asset{ThumbnailKey: &thumb, DocumentKey: &doc}).PublishReady())
	assert.False(t, (&Asset{ThumbnailKey: &thumb, DocumentKey: &pending}).PublishReady())
	assert.False(t, (&Asset{ThumbnailKey: &thumb}).PublishReady())
}

func TestUploadKey(t *testing.T) {
	assert.Equal(t, "thumbnails/HP-ANM-0001.jpg", UploadKey("HP-ANM-0001", SlotThumbnail, "cover.JPG"))
	assert.Equal(t, "documents/HP-ANM-0001.pdf", UploadKey("HP-ANM-0001", SlotDocument, "whatever.bin"))
	assert.Equal(t, "sources/HP-ANM-0001.svg", UploadKey("HP-ANM-0001", SlotSource, "raw"))
}
