package s3storage

import "testing"

func TestAudioKey(t *testing.T) {
	cases := []struct{ name, want string }{
		{"meeting.mp3", "id/meeting.mp3"},
		{"../../etc/passwd", "id/passwd"},
		{`C:\recordings\call.wav`, "id/call.wav"},
		{"", "id/audio"},
	}
	for _, tc := range cases {
		if got := AudioKey("id", tc.name); got != tc.want {
			t.Errorf("AudioKey(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestTranscriptKey(t *testing.T) {
	if got := TranscriptKey("job-1"); got != "transcripts/job-1.txt" {
		t.Fatalf("unexpected key %q", got)
	}
}
