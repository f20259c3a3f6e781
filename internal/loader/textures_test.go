package loader

import (
	"errors"
	"testing"

	"github.com/Faultbox/assetforge/internal/assets"
	"github.com/Faultbox/assetforge/pkg/bridge"
	"github.com/Faultbox/assetforge/pkg/texel"
)

func TestLookupBuiltin(t *testing.T) {
	tests := []struct {
		path  string
		ok    bool
		alpha bool
		want  texel.RGBA32
	}{
		{BuiltinColorMap, true, true, texel.RGBA32{R: 255, G: 255, B: 255, A: 255}},
		{BuiltinNormalMap, true, false, texel.RGBA32{R: 128, G: 128, B: 255, A: 255}},
		{BuiltinORMMap, true, false, texel.RGBA32{R: 255, G: 102, B: 0, A: 255}},
		{BuiltinORMRMap, true, true, texel.RGBA32{R: 255, G: 102, B: 0, A: 128}},
		{BuiltinATMap, true, true, texel.RGBA32{A: 255}},
		{BuiltinAnisotropyMap, true, false, texel.RGBA32{R: 255, G: 128, B: 0, A: 255}},
		{BuiltinClearCoatMap, true, false, texel.RGBA32{R: 255, G: 0, B: 255, A: 255}},
		{GrayPath(50), true, true, texel.Gray(127)},
		{GrayPath(0), true, true, texel.Gray(0)},
		{GrayPath(100), true, true, texel.Gray(255)},
		{BytesPath(1, 2, 3), true, false, texel.RGBA32{R: 1, G: 2, B: 3, A: 255}},
		{BytesPathAlpha(1, 2, 3, 4), true, true, texel.RGBA32{R: 1, G: 2, B: 3, A: 4}},
		{GrayPath(55), false, false, texel.RGBA32{}},
		{GrayPath(110), false, false, texel.RGBA32{}},
		{BuiltinPrefix + "bytes_1_2", false, false, texel.RGBA32{}},
		{BuiltinPrefix + "bytes_1_2_300", false, false, texel.RGBA32{}},
		{BuiltinPrefix + "bytes_a_b_c", false, false, texel.RGBA32{}},
		{BuiltinPrefix + "map_unknown", false, false, texel.RGBA32{}},
		{"map_color", false, false, texel.RGBA32{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			b, ok := lookupBuiltin(tt.path)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok {
				return
			}
			if b.hasAlpha() != tt.alpha {
				t.Errorf("expected alpha=%v, got %v", tt.alpha, b.hasAlpha())
			}
			if b.RGBA() != tt.want {
				t.Errorf("expected %v, got %v", tt.want, b.RGBA())
			}
		})
	}
}

func TestBuiltinPaths(t *testing.T) {
	for _, p := range BuiltinPaths() {
		if _, ok := lookupBuiltin(p); !ok {
			t.Errorf("expected %q to resolve", p)
		}
	}
}

func TestLoadTexture_Builtin(t *testing.T) {
	l, _, store := newTestLoader(t)
	h, err := l.LoadTexture(BuiltinNormalMap, assets.TextureConfig{Linear: true}, TextureReadConfig{})
	if err != nil {
		t.Fatalf("LoadTexture failed: %v", err)
	}
	tex, err := store.Texture(h)
	if err != nil {
		t.Fatal(err)
	}
	if tex.Dims != texel.One || tex.HasAlpha() || tex.RGB[0] != DefaultNormal {
		t.Errorf("unexpected built-in texture %+v", tex)
	}
}

func testImage() bridge.MemoryImage {
	return bridge.MemoryImage{
		Dims:     texel.Dims{X: 2, Y: 1},
		Channels: 4,
		Texels:   []texel.RGBA32{{R: 10, G: 20, B: 30, A: 40}, {R: 50, G: 60, B: 70, A: 80}},
	}
}

func TestLoadTexture_File(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		include  bool
		alpha    bool
	}{
		{"rgba kept", 4, true, true},
		{"rgba dropped", 4, false, false},
		{"rgb file", 3, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, mem, store := newTestLoader(t)
			img := testImage()
			img.Channels = tt.channels
			mem.AddImage("img.png", img)

			h, err := l.LoadTexture("img.png", assets.TextureConfig{}, TextureReadConfig{IncludeAlpha: tt.include})
			if err != nil {
				t.Fatalf("LoadTexture failed: %v", err)
			}
			tex, err := store.Texture(h)
			if err != nil {
				t.Fatal(err)
			}
			if tex.HasAlpha() != tt.alpha {
				t.Errorf("expected alpha=%v, got %v", tt.alpha, tex.HasAlpha())
			}
			if tex.Dims != img.Dims {
				t.Errorf("expected %v, got %v", img.Dims, tex.Dims)
			}
			if got := tex.At(1, 0); got.R != 50 || got.G != 60 || got.B != 70 {
				t.Errorf("unexpected texel %v", got)
			}
			if tt.alpha && tex.At(1, 0).A != 80 {
				t.Errorf("expected alpha 80, got %d", tex.At(1, 0).A)
			}
			if l.Outstanding() != 0 {
				t.Errorf("expected 0 outstanding buffers, got %d", l.Outstanding())
			}
		})
	}
}

func TestLoadTexture_Errors(t *testing.T) {
	l, mem, _ := newTestLoader(t)
	if _, err := l.LoadTexture("missing.png", assets.TextureConfig{}, TextureReadConfig{}); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}

	mem.AddImage("bad.png", bridge.MemoryImage{Dims: texel.Dims{X: -2, Y: 2}, Channels: 4})
	if _, err := l.LoadTexture("bad.png", assets.TextureConfig{}, TextureReadConfig{}); !errors.Is(err, ErrMalformedData) {
		t.Errorf("expected ErrMalformedData, got %v", err)
	}

	mem.AddImage("img.png", testImage())
	mem.FailOn("CopyTextureFile", bridge.ErrorDecode)
	_, err := l.LoadTexture("img.png", assets.TextureConfig{}, TextureReadConfig{})
	if bridge.CodeOf(err) != bridge.ErrorDecode {
		t.Errorf("expected decode failure, got %v", err)
	}
	if l.Outstanding() != 0 {
		t.Errorf("expected 0 outstanding buffers, got %d", l.Outstanding())
	}
}

func TestReadTextureMetadata(t *testing.T) {
	l, mem, _ := newTestLoader(t)
	mem.AddImage("img.png", testImage())

	md, err := l.ReadTextureMetadata("img.png")
	if err != nil {
		t.Fatalf("ReadTextureMetadata failed: %v", err)
	}
	if md.Dims != (texel.Dims{X: 2, Y: 1}) || !md.HasAlpha {
		t.Errorf("unexpected metadata %+v", md)
	}

	md, err = l.ReadTextureMetadata(BytesPath(1, 2, 3))
	if err != nil {
		t.Fatalf("ReadTextureMetadata failed: %v", err)
	}
	if md.Dims != texel.One || md.HasAlpha {
		t.Errorf("unexpected built-in metadata %+v", md)
	}
}

func TestReadTexture(t *testing.T) {
	l, mem, _ := newTestLoader(t)
	mem.AddImage("img.png", testImage())

	dst := make([]texel.RGBA32, 2)
	dims, err := l.ReadTexture("img.png", texel.Flip(true, false), dst)
	if err != nil {
		t.Fatalf("ReadTexture failed: %v", err)
	}
	if dims != (texel.Dims{X: 2, Y: 1}) {
		t.Errorf("expected 2x1, got %v", dims)
	}
	if dst[0] != (texel.RGBA32{R: 50, G: 60, B: 70, A: 80}) {
		t.Errorf("expected flipped texels, got %v", dst)
	}

	if _, err := l.ReadTexture("img.png", texel.NoProcessing, make([]texel.RGBA32, 1)); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("expected ErrBufferTooSmall, got %v", err)
	}
	if _, err := l.ReadTexture(GrayPath(50), texel.NoProcessing, nil); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("expected ErrBufferTooSmall for built-in, got %v", err)
	}

	one := make([]texel.RGBA32, 1)
	if _, err := l.ReadTexture(GrayPath(100), texel.Invert(), one); err != nil {
		t.Fatalf("ReadTexture failed: %v", err)
	}
	if one[0] != texel.Gray(0) {
		t.Errorf("expected inverted white, got %v", one[0])
	}
	if l.Outstanding() != 0 {
		t.Errorf("expected 0 outstanding buffers, got %d", l.Outstanding())
	}
}

func TestLoadCombinedTexture(t *testing.T) {
	l, mem, store := newTestLoader(t)
	mem.AddImage("a.png", testImage())
	mem.AddImage("b.png", bridge.MemoryImage{
		Dims:     texel.Dims{X: 2, Y: 1},
		Channels: 3,
		Texels:   []texel.RGBA32{{R: 1, G: 2, B: 3, A: 255}, {R: 4, G: 5, B: 6, A: 255}},
	})
	inputs := []CombinedTextureInput{{Path: "a.png"}, {Path: "b.png"}}

	cfg, err := texel.ParseSelection(texel.PixelUpscale, "aabrbg")
	if err != nil {
		t.Fatal(err)
	}
	h, err := l.LoadCombinedTexture(inputs, cfg, assets.TextureConfig{})
	if err != nil {
		t.Fatalf("LoadCombinedTexture failed: %v", err)
	}
	tex, _ := store.Texture(h)
	if tex == nil || tex.HasAlpha() {
		t.Fatalf("expected RGB texture, got %+v", tex)
	}
	if tex.RGB[1] != (texel.RGB24{R: 80, G: 4, B: 5}) {
		t.Errorf("unexpected combined texel %v", tex.RGB[1])
	}

	cfg, _ = texel.ParseSelection(texel.PixelUpscale, "arbrbgab")
	h, err = l.LoadCombinedTexture(inputs, cfg, assets.TextureConfig{})
	if err != nil {
		t.Fatalf("LoadCombinedTexture failed: %v", err)
	}
	tex, _ = store.Texture(h)
	if tex == nil || !tex.HasAlpha() || tex.RGBA[0] != (texel.RGBA32{R: 10, G: 1, B: 2, A: 30}) {
		t.Errorf("unexpected RGBA combination %+v", tex)
	}

	if _, err := l.LoadCombinedTexture(inputs[:1], cfg, assets.TextureConfig{}); !errors.Is(err, texel.ErrSourceCount) {
		t.Errorf("expected ErrSourceCount, got %v", err)
	}
}
