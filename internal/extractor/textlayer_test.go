package extractor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LeJamon/ledgerbridge/internal/dmsclient"
)

func TestTextLayerRejectsNonPDFBytes(t *testing.T) {
	s := NewTextLayer()
	in := Input{Document: dmsclient.Document{Content: "total 12,00 EUR"}, FileBytes: []byte("not a pdf")}
	require.False(t, s.CanExtract(in))
}

func TestPDFEmbeddedXMLRejectsNonPDFBytes(t *testing.T) {
	s := NewPDFEmbeddedXML()
	in := Input{FileBytes: []byte("not a pdf")}
	require.False(t, s.CanExtract(in))
}

func TestIsPDFMagicBytes(t *testing.T) {
	require.True(t, isPDF([]byte("%PDF-1.7\n...")))
	require.False(t, isPDF([]byte("plain text")))
	require.False(t, isPDF(nil))
}

func TestDocBaseURL(t *testing.T) {
	doc := dmsclient.Document{DownloadURL: "https://dms.example.com/api/documents/5/download/"}
	require.Equal(t, "https://dms.example.com", docBaseURL(doc))

	require.Equal(t, "", docBaseURL(dmsclient.Document{}))
}
