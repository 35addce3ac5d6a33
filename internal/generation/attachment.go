package generation

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// resolveContent reads every attachment of req into memory.
func resolveContent(req Request, logger *slog.Logger) (Content, error) {
	content := Content{Prompt: req.Prompt}
	for _, a := range req.Attachments {
		blob, err := loadAttachment(a)
		if err != nil {
			return Content{}, err
		}
		logger.Debug("Loaded attachment",
			"id", req.ID,
			"kind", a.Kind.String(),
			"mime_type", blob.MIMEType,
			"bytes", len(blob.Data))
		content.Blobs = append(content.Blobs, blob)
	}
	return content, nil
}

func loadAttachment(a Attachment) (Blob, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return Blob{}, fmt.Errorf("failed to read %s attachment: %w", a.Kind, err)
	}
	return Blob{MIMEType: mimeTypeFor(a.Kind, data), Data: data}, nil
}

// mimeTypeFor returns the sniffed type when it belongs to the kind's family
// (audio/*, image/*) and the kind's declared default otherwise.
func mimeTypeFor(kind AttachmentKind, data []byte) string {
	declared := kind.DefaultMIMEType()
	family, _, _ := strings.Cut(declared, "/")

	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), family+"/") {
			return m.String()
		}
	}
	return declared
}
