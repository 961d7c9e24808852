package epub

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"golang.org/x/image/webp"

	"wna/fetchhttp"
)

// detectImageFormat reads the magic bytes and returns the image format.
func detectImageFormat(data []byte) (string, error) {
	if len(data) < 12 {
		return "", errors.New("data too short to determine format")
	}

	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "jpeg", nil
	}
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "png", nil
	}
	if string(data[0:6]) == "GIF87a" || string(data[0:6]) == "GIF89a" {
		return "gif", nil
	}
	if string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return "webp", nil
	}

	return "", errors.New("unknown image format")
}

// downloadCover fetches the cover image and normalizes it to JPEG in tempDir.
// EPUB readers are picky about cover formats, so everything that is not
// already JPEG gets re-encoded at quality 90.
func downloadCover(ctx context.Context, client *fetchhttp.Client, coverURL, tempDir string) (string, error) {
	data, err := client.Get(ctx, coverURL)
	if err != nil {
		return "", err
	}

	outPath := filepath.Join(tempDir, "cover.jpg")

	format, err := detectImageFormat(data)
	if err != nil {
		return "", err
	}

	if format == "jpeg" {
		if err := os.WriteFile(outPath, data, 0644); err != nil {
			return "", err
		}
		return outPath, nil
	}

	var img image.Image
	reader := bytes.NewReader(data)

	switch format {
	case "png":
		img, err = png.Decode(reader)
	case "gif":
		img, err = gif.Decode(reader)
	case "webp":
		img, err = webp.Decode(reader)
	default:
		return "", errors.New("unsupported cover format: " + format)
	}
	if err != nil {
		return "", errors.New("failed to decode " + format + " cover: " + err.Error())
	}

	if err := imaging.Save(img, outPath, imaging.JPEGQuality(90)); err != nil {
		return "", err
	}
	return outPath, nil
}
