package client

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pngChunk struct {
	kind string
	data []byte
}

func textChunk(kind, keyword, text string) pngChunk {
	var b bytes.Buffer
	b.WriteString(keyword)
	b.WriteByte(0)
	if kind == "iTXt" {
		// uncompressed, method 0, empty language tag and translated keyword
		b.Write([]byte{0, 0, 0, 0})
	}
	b.WriteString(text)
	return pngChunk{kind: kind, data: b.Bytes()}
}

func buildPNG(t *testing.T, chunks ...pngChunk) []byte {
	t.Helper()
	var b bytes.Buffer
	b.Write(pngSignature)
	all := append([]pngChunk{{kind: "IHDR", data: make([]byte, 13)}}, chunks...)
	all = append(all, pngChunk{kind: "IEND"})
	for _, c := range all {
		require.NoError(t, binary.Write(&b, binary.BigEndian, uint32(len(c.data))))
		b.WriteString(c.kind)
		b.Write(c.data)
		crc := crc32.NewIEEE()
		crc.Write([]byte(c.kind))
		crc.Write(c.data)
		require.NoError(t, binary.Write(&b, binary.BigEndian, crc.Sum32()))
	}
	return b.Bytes()
}

func TestGetPngMetadata(t *testing.T) {
	png := buildPNG(t,
		textChunk("tEXt", "prompt", `{"3":{"class_type":"KSampler"}}`),
		textChunk("iTXt", "workflow", `{"nodes":[]}`),
		pngChunk{kind: "IDAT", data: []byte{1, 2, 3}},
	)

	meta, err := GetPngMetadata(bytes.NewReader(png))
	require.NoError(t, err)
	assert.Equal(t, `{"3":{"class_type":"KSampler"}}`, meta["prompt"])
	assert.Equal(t, `{"nodes":[]}`, meta["workflow"])
	assert.Len(t, meta, 2)
}

func TestGetPngMetadataSkipsCompressedText(t *testing.T) {
	compressed := pngChunk{kind: "iTXt", data: append([]byte("workflow\x00"), 1, 0, 0, 0, 'x')}
	meta, err := GetPngMetadata(bytes.NewReader(buildPNG(t, compressed)))
	require.NoError(t, err)
	assert.Empty(t, meta)
}

func TestGetPngMetadataRejectsNonPNG(t *testing.T) {
	_, err := GetPngMetadata(bytes.NewReader([]byte("GIF89a-not-a-png")))
	assert.Error(t, err)
}

func TestGetPngMetadataTruncated(t *testing.T) {
	png := buildPNG(t, textChunk("tEXt", "prompt", "{}"))
	_, err := GetPngMetadata(bytes.NewReader(png[:len(pngSignature)+10]))
	assert.Error(t, err)
}

func declaredChunk(length uint32, kind string, payload []byte) []byte {
	var b bytes.Buffer
	b.Write(pngSignature)
	binary.Write(&b, binary.BigEndian, length)
	b.WriteString(kind)
	b.Write(payload)
	return b.Bytes()
}

func TestGetPngMetadataRejectsHugeDeclaredLength(t *testing.T) {
	tests := []struct {
		name   string
		length uint32
		kind   string
	}{
		{"text chunk at png maximum", 0x7FFFFFFF, "tEXt"},
		{"itxt chunk above text limit", maxTextChunkLength + 1, "iTXt"},
		{"length above png maximum", 0x80000000, "IDAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GetPngMetadata(bytes.NewReader(declaredChunk(tt.length, tt.kind, []byte("prompt\x00{}"))))
			assert.Error(t, err)
		})
	}
}

func TestGetPngMetadataShortTextChunk(t *testing.T) {
	_, err := GetPngMetadata(bytes.NewReader(declaredChunk(1<<20, "tEXt", []byte("prompt\x00{}"))))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
