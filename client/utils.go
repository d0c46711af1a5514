package client

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var pngSignature = []byte{137, 80, 78, 71, 13, 10, 26, 10}

const (
	maxChunkLength     = 1<<31 - 1
	maxTextChunkLength = 16 << 20
)

// GetPngMetadata returns the tEXt and uncompressed iTXt chunks of a PNG stream, keyed by keyword.
func GetPngMetadata(r io.Reader) (map[string]string, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if !bytes.Equal(header, pngSignature) {
		return nil, errors.New("not a valid PNG file")
	}

	chunks := make(map[string]string)
	for {
		var length uint32
		err := binary.Read(r, binary.BigEndian, &length)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if length > maxChunkLength {
			return nil, fmt.Errorf("PNG chunk length %d exceeds maximum", length)
		}

		chunkType := make([]byte, 4)
		if _, err = io.ReadFull(r, chunkType); err != nil {
			return nil, err
		}

		switch string(chunkType) {
		case "tEXt", "iTXt":
			if length > maxTextChunkLength {
				return nil, fmt.Errorf("%s chunk of %d bytes is too large", chunkType, length)
			}
			data, err := io.ReadAll(io.LimitReader(r, int64(length)))
			if err != nil {
				return nil, err
			}
			if len(data) < int(length) {
				return nil, io.ErrUnexpectedEOF
			}
			keyword, text, err := parseTextChunk(string(chunkType), data)
			if err != nil {
				return nil, err
			}
			if keyword != "" {
				chunks[keyword] = text
			}
		default:
			// Skip the chunk data if it's not text
			if _, err = io.CopyN(io.Discard, r, int64(length)); err != nil {
				return nil, err
			}
		}

		// Skip the CRC
		if _, err = io.CopyN(io.Discard, r, 4); err != nil {
			return nil, err
		}
		if string(chunkType) == "IEND" {
			break
		}
	}
	return chunks, nil
}

func parseTextChunk(chunkType string, data []byte) (string, string, error) {
	keywordEnd := bytes.IndexByte(data, 0)
	if keywordEnd == -1 {
		return "", "", fmt.Errorf("malformed %s chunk", chunkType)
	}
	keyword := string(data[:keywordEnd])
	rest := data[keywordEnd+1:]
	if chunkType == "tEXt" {
		return keyword, string(rest), nil
	}

	// iTXt: compression flag, compression method, language tag\0, translated keyword\0, text
	if len(rest) < 2 {
		return "", "", errors.New("malformed iTXt chunk")
	}
	if rest[0] != 0 {
		// compressed text is not needed for ComfyUI metadata
		return "", "", nil
	}
	rest = rest[2:]
	for i := 0; i < 2; i++ {
		end := bytes.IndexByte(rest, 0)
		if end == -1 {
			return "", "", errors.New("malformed iTXt chunk")
		}
		rest = rest[end+1:]
	}
	return keyword, string(rest), nil
}
