package oracle

import (
	"errors"
	"testing"

	"sshniff/internal/config"
	"sshniff/internal/engine/phase"
	"sshniff/internal/model"
	"sshniff/internal/sshtest"
)

func chachaAlgs() model.AlgorithmSet {
	return model.AlgorithmSet{
		EncryptionC2S: "chacha20-poly1305@openssh.com",
		EncryptionS2C: "chacha20-poly1305@openssh.com",
		MACC2S:        "implicit",
		MACS2C:        "implicit",
		Compression:   "none",
	}
}

func testCfg() config.Analyzer {
	return config.Default().Analyzer
}

func session() (*model.Stream, *phase.Result) {
	b := sshtest.NewStreamBuilder().Handshake().Auth().Session()
	b.Keystroke(36, 36).Keystroke(36, 36).Keystroke(36, 36).Enter(36)
	stream := b.Build()

	res := phase.Walk(stream)
	if err := phase.LocateAuthSuccess(stream, res, chachaAlgs()); err != nil {
		panic(err)
	}
	return stream, res
}

func TestInferAgreement(t *testing.T) {
	stream, ph := session()

	res, err := Infer(stream, ph, chachaAlgs(), testCfg())
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if res.KeystrokeSize != 36 {
		t.Errorf("KeystrokeSize = %d, want 36", res.KeystrokeSize)
	}
	if res.IndicatorPos != sshtest.ClientNewKeysPos+1 {
		t.Errorf("IndicatorPos = %d", res.IndicatorPos)
	}
	if res.PromptPos != sshtest.ClientNewKeysPos+4 {
		t.Errorf("PromptPos = %d", res.PromptPos)
	}
	if res.PromptSize != -52 {
		t.Errorf("PromptSize = %d, want -52", res.PromptSize)
	}
}

func TestInferClusterWinsOnDisagreement(t *testing.T) {
	// Make the NEWKEYS+1 indicator lie: the cluster of observed keystrokes
	// must win.
	b := sshtest.NewStreamBuilder().Handshake()
	b.ClientLen(60) // would predict keystroke size 52
	b.ServerLen(44)
	b.ClientLen(60)
	b.ServerLen(52)
	b.ClientLen(92)
	b.ServerLen(28) // success
	b.Keystroke(36, 36).Keystroke(36, 36).Keystroke(36, 36).Enter(36)
	stream := b.Build()

	ph := phase.Walk(stream)
	if err := phase.LocateAuthSuccess(stream, ph, chachaAlgs()); err != nil {
		t.Fatalf("LocateAuthSuccess failed: %v", err)
	}

	res, err := Infer(stream, ph, chachaAlgs(), testCfg())
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if res.KeystrokeSize != 36 {
		t.Errorf("KeystrokeSize = %d, want cluster value 36", res.KeystrokeSize)
	}
}

func TestInferCompressionUnknown(t *testing.T) {
	stream, ph := session()
	algs := chachaAlgs()
	algs.Compression = "zlib@openssh.com"

	if _, err := Infer(stream, ph, algs, testCfg()); !errors.Is(err, ErrKeystrokeSizeUnknown) {
		t.Errorf("expected ErrKeystrokeSizeUnknown, got %v", err)
	}
}

func TestInferTruncatedStream(t *testing.T) {
	b := sshtest.NewStreamBuilder()
	b.Client([]byte("SSH-2.0-OpenSSH_9.6\r\n"))
	b.Server([]byte("SSH-2.0-OpenSSH_8.4p1 Debian-5\r\n"))
	b.Client(sshtest.KexInitPacket(sshtest.ClientKexLists))
	b.Server(sshtest.KexInitPacket(sshtest.ServerKexLists))
	stream := b.Build()
	ph := phase.Walk(stream)

	if _, err := Infer(stream, ph, chachaAlgs(), testCfg()); !errors.Is(err, ErrKeystrokeSizeUnknown) {
		t.Errorf("expected ErrKeystrokeSizeUnknown, got %v", err)
	}
}
