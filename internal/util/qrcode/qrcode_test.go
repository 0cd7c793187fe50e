package qrcode

import (
	"bytes"
	"image/png"
	"testing"
)

func TestRender(t *testing.T) {
	out, err := Render("JBSWY3DPEHPK3PXPJBSWY3DPEH", 200)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 200 {
		t.Fatalf("size = %dx%d, want 200x200", b.Dx(), b.Dy())
	}
}

func TestRenderEmptyToken(t *testing.T) {
	if _, err := Render("", DefaultSize); err == nil {
		t.Fatal("expected an error for an empty token")
	}
}
