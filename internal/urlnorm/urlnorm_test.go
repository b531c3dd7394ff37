package urlnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "short link with timestamp",
			in:   "https://youtu.be/abc123?t=30",
			want: "https://www.youtube.com/watch?v=abc123",
		},
		{
			name: "full link with playlist param",
			in:   "https://www.youtube.com/watch?v=abc123&list=PL1",
			want: "https://www.youtube.com/watch?v=abc123",
		},
		{
			name: "full link with tracking params",
			in:   "https://www.youtube.com/watch?v=abc123&utm_source=share&feature=youtu.be",
			want: "https://www.youtube.com/watch?v=abc123",
		},
		{
			name: "mobile host",
			in:   "https://m.youtube.com/watch?v=abc123",
			want: "https://www.youtube.com/watch?v=abc123",
		},
		{
			name: "music host",
			in:   "https://music.youtube.com/watch?v=abc123",
			want: "https://www.youtube.com/watch?v=abc123",
		},
		{
			name: "upper case host",
			in:   "https://WWW.YouTube.COM/watch?v=abc123",
			want: "https://www.youtube.com/watch?v=abc123",
		},
		{
			name: "short link with path segments",
			in:   "https://youtu.be/abc123/extra",
			want: "https://www.youtube.com/watch?v=abc123",
		},
		{
			name: "tiktok canonical",
			in:   "https://www.tiktok.com/@someuser/video/7234567890123456789",
			want: "https://www.tiktok.com/@user/video/7234567890123456789",
		},
		{
			name: "tiktok other user same id",
			in:   "https://www.tiktok.com/@other/video/7234567890123456789?is_copy_url=1",
			want: "https://www.tiktok.com/@user/video/7234567890123456789",
		},
		{
			name: "unknown url drops query",
			in:   "https://example.com/some/path?utm_source=x",
			want: "https://example.com/some/path",
		},
		{
			name: "host only",
			in:   "https://Example.COM",
			want: "https://example.com",
		},
		{
			name: "schemeless input",
			in:   "//example.com/clip",
			want: "https://example.com/clip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"https://youtu.be/abc123?t=30",
		"https://www.youtube.com/watch?v=abc123&list=PL1",
		"https://www.tiktok.com/@someuser/video/7234567890123456789",
		"https://example.com/path?x=1",
		"not a url at all",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "normalize not idempotent for %q", in)
	}
}

func TestNormalizeEquivalentForms(t *testing.T) {
	// Short-link vs long-link forms of the same content must agree.
	assert.Equal(t,
		Normalize("https://youtu.be/abc123?t=30"),
		Normalize("https://www.youtube.com/watch?v=abc123&list=PL1"),
	)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		in   string
		want SourceType
	}{
		{"https://www.youtube.com/watch?v=abc", SourceYouTube},
		{"https://youtu.be/abc", SourceYouTube},
		{"https://music.youtube.com/watch?v=abc", SourceYouTubeMusic},
		{"https://www.tiktok.com/@user/video/123", SourceTikTok},
		{"https://vt.tiktok.com/ZS123/", SourceTikTok},
		{"https://vm.tiktok.com/ZS123/", SourceTikTok},
		{"https://vimeo.com/12345", SourceUnknown},
		{"", SourceUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.in))
		})
	}
}

func TestFingerprint(t *testing.T) {
	// Equal normalized forms -> equal fingerprints.
	assert.Equal(t,
		Fingerprint("https://youtu.be/abc123?t=30"),
		Fingerprint("https://www.youtube.com/watch?v=abc123&list=PL1"),
	)

	// Different content -> different fingerprints.
	assert.NotEqual(t,
		Fingerprint("https://www.youtube.com/watch?v=abc123"),
		Fingerprint("https://www.youtube.com/watch?v=xyz789"),
	)

	// Fixed-length hex, never the identity.
	fp := Fingerprint("https://www.youtube.com/watch?v=abc123")
	assert.Len(t, fp, 32)
	assert.NotContains(t, fp, "/")
	assert.NotEqual(t, "https://www.youtube.com/watch?v=abc123", fp)
}
