package main

import "testing"

func TestDispatch(t *testing.T) {
	bing := SearchEngine{Name: "Bing", URLTemplate: "https://www.bing.com/search?q=%s"}

	tests := []struct {
		name  string
		input string
		want  NavigationTarget
	}{
		{"bare domain", "openai.com", NavigationTarget{Kind: TargetAddress, URL: "https://openai.com"}},
		{"domain with path", "  go.dev/doc  ", NavigationTarget{Kind: TargetAddress, URL: "https://go.dev/doc"}},
		{"dotted version", "v1.2", NavigationTarget{Kind: TargetAddress, URL: "https://v1.2"}},
		{"absolute http", "http://example.com/a?b=c", NavigationTarget{Kind: TargetAddress, URL: "http://example.com/a?b=c"}},
		{"other scheme", "ftp://files.example.org", NavigationTarget{Kind: TargetAddress, URL: "ftp://files.example.org"}},
		{"localhost port", "localhost:3000", NavigationTarget{Kind: TargetAddress, URL: "http://localhost:3000"}},
		{"localhost path", "localhost:8080/api", NavigationTarget{Kind: TargetAddress, URL: "http://localhost:8080/api"}},
		{"plain words", "weather today", NavigationTarget{Kind: TargetQuery, URL: "https://www.bing.com/search?q=weather%20today", Engine: "Bing"}},
		{"single word", "hello", NavigationTarget{Kind: TargetQuery, URL: "https://www.bing.com/search?q=hello", Engine: "Bing"}},
		{"dot with space", "what is go1.22", NavigationTarget{Kind: TargetQuery, URL: "https://www.bing.com/search?q=what%20is%20go1.22", Engine: "Bing"}},
		{"url with space", "http://example.com/a b", NavigationTarget{Kind: TargetQuery, URL: "https://www.bing.com/search?q=http%3A%2F%2Fexample.com%2Fa%20b", Engine: "Bing"}},
		{"reserved characters", "c++ & go", NavigationTarget{Kind: TargetQuery, URL: "https://www.bing.com/search?q=c%2B%2B%20%26%20go", Engine: "Bing"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Dispatch(tt.input, bing)
			if !ok {
				t.Fatalf("Dispatch(%q) returned no target", tt.input)
			}
			if got != tt.want {
				t.Errorf("Dispatch(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDispatch_Blank(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n"} {
		if got, ok := Dispatch(input, DefaultSearchEngines()[0]); ok {
			t.Errorf("Dispatch(%q) = %+v, want no target", input, got)
		}
	}
}

func TestDispatch_ReplacesFirstPlaceholderOnly(t *testing.T) {
	engine := SearchEngine{Name: "Odd", URLTemplate: "https://search.example/?q=%s&fallback=%s"}

	got, _ := Dispatch("go", engine)
	if want := "https://search.example/?q=go&fallback=%s"; got.URL != want {
		t.Errorf("URL = %q, want %q", got.URL, want)
	}
}

func TestEncodeURIComponent(t *testing.T) {
	tests := map[string]string{
		"":              "",
		"abcXYZ019":     "abcXYZ019",
		"-_.!~*'()":     "-_.!~*'()",
		"a b":           "a%20b",
		"a+b":           "a%2Bb",
		"x=1&y=2":       "x%3D1%26y%3D2",
		"/path?#":       "%2Fpath%3F%23",
		"café":          "caf%C3%A9",
		"100%":          "100%25",
		"https://a.b/c": "https%3A%2F%2Fa.b%2Fc",
	}

	for in, want := range tests {
		if got := encodeURIComponent(in); got != want {
			t.Errorf("encodeURIComponent(%q) = %q, want %q", in, got, want)
		}
	}
}
