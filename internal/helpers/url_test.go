package helpers

import (
	"errors"
	"testing"
)

func TestDedupKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases host and cleans path",
			in:   "https://Example.COM/news/../tech/latest",
			want: "https://example.com/tech/latest",
		},
		{
			name: "removes default port fragment and tracking params",
			in:   "http://news.example.com:80/article?id=123&utm_source=rss#section",
			want: "http://news.example.com/article?id=123",
		},
		{
			name: "sorts query parameters and strips trailing slash",
			in:   "https://example.com/path/?b=2&a=1&fbclid=xyz",
			want: "https://example.com/path?a=1&b=2",
		},
		{
			name: "root path collapses",
			in:   "https://example.com/",
			want: "https://example.com",
		},
		{
			name: "keeps non default port",
			in:   "https://example.com:8443/a/",
			want: "https://example.com:8443/a",
		},
		{
			name: "ipv6 keeps brackets when default port drops",
			in:   "https://[::1]:443/path/",
			want: "https://[::1]/path",
		},
		{
			name: "ipv6 with explicit port",
			in:   "http://[2001:DB8::1]:8080/",
			want: "http://[2001:db8::1]:8080",
		},
		{
			name: "normalises repeated slashes",
			in:   "https://example.com//a//b///c/",
			want: "https://example.com/a/b/c",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := DedupKey(tt.in)
			if err != nil {
				t.Fatalf("DedupKey() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("DedupKey() got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDedupKeyIdempotent(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"https://Example.com/Article?utm_campaign=foo&b=2&a=1",
		"http://example.com:80/",
		"https://example.com/a%20b/c/?q=hello+world",
		"https://example.com?x=1",
		"https://[::1]:443/path/",
		"https://sub.example.co.uk/a/./b/../c#frag",
	}
	for _, in := range inputs {
		first, err := DedupKey(in)
		if err != nil {
			t.Fatalf("DedupKey(%q): %v", in, err)
		}
		second, err := DedupKey(first)
		if err != nil {
			t.Fatalf("DedupKey(%q): %v", first, err)
		}
		if first != second {
			t.Fatalf("not idempotent: %q -> %q -> %q", in, first, second)
		}
	}
}

func TestDedupKeySchemeMatters(t *testing.T) {
	t.Parallel()
	a, _ := DedupKey("http://example.com/a")
	b, _ := DedupKey("https://example.com/a")
	if a == b {
		t.Fatalf("expected http and https keys to differ")
	}
}

func TestDedupKeyErrors(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "example.com/path", "ftp://example.com/file", "/relative/path", "https:///nohost"} {
		if _, err := DedupKey(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
	if _, err := ParseHTTPURL("mailto:someone@example.com"); !errors.Is(err, ErrNotAbsoluteURL) {
		t.Fatalf("expected ErrNotAbsoluteURL, got %v", err)
	}
}

func TestHostnameAndSubdomain(t *testing.T) {
	t.Parallel()
	if got := Hostname("https://News.Example.com:8080/x"); got != "news.example.com" {
		t.Fatalf("Hostname got %q", got)
	}
	if Hostname("not a url") != "" {
		t.Fatalf("expected empty hostname for invalid url")
	}
	if !SameOrSubdomain("news.example.com", "example.com") {
		t.Fatalf("expected subdomain match")
	}
	if SameOrSubdomain("badexample.com", "example.com") {
		t.Fatalf("did not expect suffix-only match")
	}
	if !SameOrSubdomain("example.com", ".example.com") {
		t.Fatalf("expected leading dot to be ignored")
	}
}
