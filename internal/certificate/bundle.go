package certificate

import (
	"archive/zip"
	"context"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// WriteZip renders every certificate into w as a ZIP of PDFs.
func WriteZip(ctx context.Context, w io.Writer, items []Detail, baseURL string, loc *time.Location) error {
	zw := zip.NewWriter(w)
	seen := map[string]int{}
	for _, d := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		pdf, err := RenderPDF(d, VerifyURL(baseURL, d.VerificationCode), loc)
		if err != nil {
			return err
		}
		base := FileName(d)
		name := base
		if n := seen[base]; n > 0 {
			name = strings.TrimSuffix(base, ".pdf") + "-" + strconv.Itoa(n+1) + ".pdf"
		}
		seen[base]++
		f, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: time.Unix(d.IssuedAt, 0),
		})
		if err != nil {
			return err
		}
		if _, err := f.Write(pdf); err != nil {
			return err
		}
	}
	return zw.Close()
}

// FileName is "<serial>-<holder>.pdf" with the holder reduced to ASCII letters and digits.
func FileName(d Detail) string {
	var b strings.Builder
	for _, r := range d.HolderName {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteByte('_')
		}
	}
	holder := strings.Trim(b.String(), "_")
	if holder == "" {
		return d.Serial + ".pdf"
	}
	return d.Serial + "-" + holder + ".pdf"
}
