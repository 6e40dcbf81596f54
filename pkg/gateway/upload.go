package gateway

import (
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// MaxUploadBytes caps a single uploaded photograph.
const MaxUploadBytes = 20 << 20

// UploadResponse is the 200 body of POST /api/upload.
type UploadResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

// uploadExtensions maps accepted MIME types to stored file extensions.
var uploadExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

func (s *Server) handleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "No file uploaded"})
	}
	if fh.Size > MaxUploadBytes {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "File too large"})
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxUploadBytes))
	if err != nil {
		return err
	}

	// Sniff the content; the client-supplied Content-Type is not trusted
	mt := mimetype.Detect(data)
	ext, ok := "", false
	for mime, e := range uploadExtensions {
		if mt.Is(mime) {
			ext, ok = e, true
			break
		}
	}
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "Only PNG and JPEG images are allowed"})
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return err
	}
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.uploadDir, name), data, 0o644); err != nil {
		return err
	}

	s.logger.Info("upload stored",
		"request_id", requestID(c),
		"file", name,
		"mime", mt.String(),
		"bytes", len(data))

	return c.JSON(UploadResponse{Success: true, URL: "/uploads/" + name})
}
