package bounce

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func writeCharsetDir(t *testing.T, root, charset string, bodies [4]string) {
	t.Helper()
	dir := filepath.Join(root, charset)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for i, name := range fileNames {
		writeTemplate(t, dir, name, bodies[i])
	}
}

func minimalTemplateBody(subject, body string) string {
	return "Content-Type: text/plain\r\nFrom: postmaster@example.com\r\nSubject: " + subject + "\r\n\r\n" + body
}

func TestLoadTemplateSetRequiresAsciiDefault(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "mail_bounce"), 0o755))

	_, err := loadTemplateSet(root)
	require.Error(t, err)
}

func TestLoadTemplateSetSkipsIncompleteCharsetDir(t *testing.T) {
	root := t.TempDir()
	bounceDir := filepath.Join(root, "mail_bounce")
	require.NoError(t, os.MkdirAll(filepath.Join(bounceDir, "ascii"), 0o755))
	for i, name := range fileNames {
		writeTemplate(t, filepath.Join(bounceDir, "ascii"), name, minimalTemplateBody("s", "b"+string(rune('0'+i))))
	}

	incomplete := filepath.Join(bounceDir, "windows-1252")
	require.NoError(t, os.MkdirAll(incomplete, 0o755))
	writeTemplate(t, incomplete, fileNames[AutoResponse], minimalTemplateBody("s", "b"))

	set, err := loadTemplateSet(root)
	require.NoError(t, err)
	require.NotNil(t, set.def)
	require.Contains(t, set.byCharset, "ascii")
	require.NotContains(t, set.byCharset, "windows-1252")
}

func TestScanTagsRejectsDuplicate(t *testing.T) {
	_, err := scanTags([]byte("<time> again <time>"))
	require.Error(t, err)
}

func TestScanTagsAllowsSubset(t *testing.T) {
	tags, err := scanTags([]byte("Sent <time> to <rcpt>"))
	require.NoError(t, err)
	require.Len(t, tags, 2)
	require.Equal(t, tagTime, tags[0].tag)
	require.Equal(t, tagRcpt, tags[1].tag)
}

func TestLoadTemplateSetRejectsOversizeFile(t *testing.T) {
	root := t.TempDir()
	bounceDir := filepath.Join(root, "mail_bounce", "ascii")
	require.NoError(t, os.MkdirAll(bounceDir, 0o755))
	big := make([]byte, maxTemplateSize)
	for i := range big {
		big[i] = 'x'
	}
	for _, name := range fileNames {
		writeTemplate(t, bounceDir, name, minimalTemplateBody("s", "b"))
	}
	require.NoError(t, os.WriteFile(filepath.Join(bounceDir, fileNames[AutoResponse]), big, 0o644))

	_, err := loadTemplateSet(root)
	require.Error(t, err) // the oversize file disqualifies the only charset dir, leaving no ascii default
}
