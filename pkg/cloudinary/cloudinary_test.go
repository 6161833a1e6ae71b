package cloudinary

import (
	"regexp"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewReportsMissingCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.ErrorContains(t, err, "api key, api secret")
}

func TestNewTrimsFolderAndTags(t *testing.T) {
	svc, err := New(Config{CloudName: "demo", APIKey: "key", APISecret: "secret", Folder: "/roster/photos/", Tags: []string{"student"}}, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "roster/photos", svc.folder)
	require.Equal(t, []string{"gema-roster", "student"}, []string(svc.tags))
}

func TestPublicIDFor(t *testing.T) {
	suffix := `-[0-9a-f]{8}$`
	cases := map[string]string{
		"Lan Photo (1).png":      `^lan-photo-1` + suffix,
		"uploads/../Ảnh thẻ.jpg": `^nh-th` + suffix,
		"***.jpg":                `^image` + suffix,
		"":                       `^image` + suffix,
	}
	for name, pattern := range cases {
		require.Regexp(t, regexp.MustCompile(pattern), publicIDFor(name), name)
	}
}

func TestPublicIDForIsUnique(t *testing.T) {
	require.NotEqual(t, publicIDFor("photo.png"), publicIDFor("photo.png"))
}
