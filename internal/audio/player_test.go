package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fieldmic/internal/domain"
)

func TestExecPlayerPipesArtifactAndEndsNaturally(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "played.bin")
	script := writeScript(t, "player.sh", "#!/usr/bin/env bash\ncat > "+out+"\n")
	player, err := NewExecPlayer(script)
	if err != nil {
		t.Fatalf("new player failed: %v", err)
	}

	playback, err := player.Play(context.Background(), domain.Artifact{MimeType: "audio/mpeg", Data: []byte("ID3audio")})
	if err != nil {
		t.Fatalf("play failed: %v", err)
	}

	select {
	case err := <-playback.Done():
		if err != nil {
			t.Fatalf("expected natural end, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for playback to finish")
	}

	played, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(played) != "ID3audio" {
		t.Fatalf("unexpected bytes piped to player: %q", string(played))
	}
}

func TestExecPlayerStopHaltsImmediately(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "slow.sh", "#!/usr/bin/env bash\nexec sleep 10\n")
	player, _ := NewExecPlayer(script)

	playback, err := player.Play(context.Background(), domain.Artifact{Data: []byte("x")})
	if err != nil {
		t.Fatalf("play failed: %v", err)
	}

	started := time.Now()
	if err := playback.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if time.Since(started) > 2*time.Second {
		t.Fatalf("stop took too long")
	}
	if err := <-playback.Done(); err != nil {
		t.Fatalf("stopped playback should not report failure, got %v", err)
	}
	if err := playback.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
}

func TestExecPlayerReportsFailure(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "broken.sh", "#!/usr/bin/env bash\ncat >/dev/null\necho 'invalid data found' 1>&2\nexit 1\n")
	player, _ := NewExecPlayer(script)

	playback, err := player.Play(context.Background(), domain.Artifact{Data: []byte("garbage")})
	if err != nil {
		t.Fatalf("play failed: %v", err)
	}

	err = <-playback.Done()
	if !errors.Is(err, domain.ErrPlaybackFailure) {
		t.Fatalf("expected playback failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid data found") {
		t.Fatalf("expected stderr detail, got %v", err)
	}
}

func TestExecPlayerRejectsEmptyArtifact(t *testing.T) {
	t.Parallel()

	player, _ := NewExecPlayer("ffplay")
	if _, err := player.Play(context.Background(), domain.Artifact{}); !errors.Is(err, domain.ErrPlaybackFailure) {
		t.Fatalf("expected playback failure for empty artifact, got %v", err)
	}
}

func TestPlayerArgsByBinary(t *testing.T) {
	t.Parallel()

	if got := strings.Join(playerArgs("/usr/bin/ffplay"), " "); !strings.Contains(got, "-nodisp -autoexit") {
		t.Fatalf("unexpected ffplay args: %q", got)
	}
	if got := strings.Join(playerArgs("mpv"), " "); !strings.Contains(got, "--no-video") {
		t.Fatalf("unexpected mpv args: %q", got)
	}
}
