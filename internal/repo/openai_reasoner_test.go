package repo

import "testing"

func TestParseInferenceOutput(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			name:    "plain json",
			content: `{"root_cause":"cpu-saturation","confidence":0.8,"rationale":"sustained load"}`,
			want:    "cpu-saturation",
		},
		{
			name:    "fenced json",
			content: "```json\n{\"root_cause\":\"disk-full\",\"confidence\":0.9,\"rationale\":\"usage at 99%\"}\n```",
			want:    "disk-full",
		},
		{
			name:    "prefixed prose",
			content: `Based on the evidence: {"root_cause":"config-regression","confidence":0.7,"rationale":"deploy preceded errors"}`,
			want:    "config-regression",
		},
		{
			name:    "missing root cause",
			content: `{"confidence":0.7}`,
			wantErr: true,
		},
		{
			name:    "not json",
			content: "I cannot determine the root cause.",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := parseInferenceOutput(tc.content)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.RootCause != tc.want {
				t.Fatalf("expected root cause %q, got %q", tc.want, out.RootCause)
			}
		})
	}
}

func TestParseInferenceOutputClampsConfidence(t *testing.T) {
	out, err := parseInferenceOutput(`{"root_cause":"x","confidence":1.7}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Confidence != 1 {
		t.Fatalf("confidence must clamp to 1, got %.2f", out.Confidence)
	}
}
