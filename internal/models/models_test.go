package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileType(t *testing.T) {
	tests := []struct {
		filename string
		want     FileType
		wantErr  bool
	}{
		{"report.pdf", FileTypePDF, false},
		{"notes.txt", FileTypeTXT, false},
		{"REPORT.PDF", FileTypePDF, false},
		{"archive.docx", "", true},
		{"noextension", "", true},
		{"image.png", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFileType(tt.filename)
		if tt.wantErr {
			assert.Error(t, err, tt.filename)
			continue
		}
		require.NoError(t, err, tt.filename)
		assert.Equal(t, tt.want, got)
	}
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "doc-1_chunk_0", ChunkID("doc-1", 0))
	assert.Equal(t, "doc-1_chunk_12", ChunkID("doc-1", 12))
}

func validMetadata() ChunkMetadata {
	return ChunkMetadata{
		DocumentID: "doc-1",
		Filename:   "notes.txt",
		FileType:   FileTypeTXT,
		ChunkIndex: 2,
		ChunkStart: 900,
		UploadTime: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
	}
}

func TestChunkMetadata_Validate(t *testing.T) {
	require.NoError(t, validMetadata().Validate())

	missing := validMetadata()
	missing.DocumentID = ""
	assert.Error(t, missing.Validate())

	missing = validMetadata()
	missing.Filename = ""
	assert.Error(t, missing.Validate())

	missing = validMetadata()
	missing.FileType = "csv"
	assert.Error(t, missing.Validate())

	missing = validMetadata()
	missing.ChunkIndex = -1
	assert.Error(t, missing.Validate())

	missing = validMetadata()
	missing.UploadTime = time.Time{}
	assert.Error(t, missing.Validate())
}

func TestChunkMetadata_MapRoundTrip(t *testing.T) {
	meta := validMetadata()

	raw := meta.ToMap()
	assert.Equal(t, "doc-1", raw["document_id"])
	assert.Equal(t, "txt", raw["file_type"])
	assert.Equal(t, "2", raw["chunk_index"])
	assert.Equal(t, "900", raw["chunk_start"])

	parsed, err := MetadataFromMap(raw)
	require.NoError(t, err)
	assert.Equal(t, meta, parsed)
}

func TestMetadataFromMap_Invalid(t *testing.T) {
	raw := validMetadata().ToMap()
	raw["chunk_index"] = "not-a-number"
	_, err := MetadataFromMap(raw)
	assert.Error(t, err)

	raw = validMetadata().ToMap()
	delete(raw, "upload_time")
	_, err = MetadataFromMap(raw)
	assert.Error(t, err)

	raw = validMetadata().ToMap()
	raw["document_id"] = ""
	_, err = MetadataFromMap(raw)
	assert.Error(t, err)
}
