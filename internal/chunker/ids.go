package chunker

import (
	"strconv"

	"github.com/google/uuid"
)

var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("pdfrag/chunk"))

// ChunkID derives a stable identifier for the idx-th chunk of a document, so the same
// source chunked twice yields the same IDs.
func ChunkID(documentID string, idx int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+":"+strconv.Itoa(idx))).String()
}
