package browser

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestLocator_Validate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		loc     Locator
		wantErr string
	}{
		{"css", CSS("h1").Filter("Inbox"), ""},
		{"role with name", Role("button", "Submit Quote"), ""},
		{"label", Label("Bid Amount ($)"), ""},
		{"text", Text("Fix leaking faucet"), ""},
		{"scoped", Role("button", "Submit Quote").In(CSS("form")), ""},
		{"empty", Locator{}, "no strategy"},
		{"two strategies", Locator{CSS: "h1", Text: "Inbox"}, "more than one"},
		{"name without role", Locator{CSS: "button", Name: "Go"}, "name without role"},
		{"bad parent", CSS("button").In(Locator{}), "within"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.loc.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLocator_String(t *testing.T) {
	t.Parallel()
	loc := Role("button", "Submit Quote").In(CSS("form")).Strict()
	assert.Equal(t, `role button name "Submit Quote" exact within (css "form")`, loc.String())
	assert.Equal(t, `css "h1" has-text "Job Requests"`, CSS("h1").Filter("Job Requests").String())
	assert.Equal(t, "<empty>", Locator{}.String())
}

func TestLocator_BuildersDoNotAlias(t *testing.T) {
	t.Parallel()
	parent := CSS("form")
	child := Label("Quote Details").In(parent)
	parent.CSS = "div"
	assert.Equal(t, "form", child.Within.CSS)
}

func TestLocalStorageScript_EmbedsEntriesAsJSON(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		key := rapid.StringMatching(`[a-zA-Z_]{1,12}`).Draw(rt, "key")
		value := rapid.String().Draw(rt, "value")

		script, err := LocalStorageScript(map[string]string{key: value})
		if err != nil {
			rt.Fatalf("LocalStorageScript: %v", err)
		}
		encoded, _ := json.Marshal(map[string]string{key: value})
		if !strings.Contains(script, string(encoded)) {
			rt.Fatalf("script does not embed entries %s:\n%s", encoded, script)
		}
		if !strings.Contains(script, "localStorage.setItem") {
			rt.Fatalf("script does not write localStorage")
		}
	})
}

func TestElementState_String(t *testing.T) {
	t.Parallel()
	s := ElementState{Visible: true, Enabled: true, Text: "Inbox"}
	assert.Equal(t, `visible=true enabled=true editable=false text="Inbox"`, s.String())
}
