package hostexec

import (
	"errors"
	"testing"
)

func TestPolicyAllowsReadOnlyCommands(t *testing.T) {
	p := DefaultPolicy()
	allowed := []string{
		"ps auxww",
		"ps -ef",
		"lsof -p 4242 | grep -E 'tty|pts'",
		"cat /proc/4242/environ",
		"timeout 1 head -c 0 /dev/pts/3",
		"timeout 0.5 cat /dev/pts/3",
		"timeout 2 script -q -c 'cat /dev/pts/3' /dev/null",
	}
	for _, cmd := range allowed {
		if err := p.Validate(cmd); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", cmd, err)
		}
	}
}

func TestPolicyRejectsMutatingAndCompoundCommands(t *testing.T) {
	p := DefaultPolicy()
	rejected := []string{
		"",
		"rm -rf /",
		"ps aux; rm -rf /",
		"ps aux && reboot",
		"cat /etc/shadow",
		"cat /proc/1/environ > /tmp/x",
		"grep root < /etc/passwd",
		"cat /dev/pts/1 | sh",
		"ps aux |",
		"ps $(whoami)",
		"ps `id`",
		"grep 'unterminated /proc/1/status",
		"ps aux\nrm -rf /",
		"kill -9 1",
		"cat /proc/../etc/shadow",
		"cat /proc/1/root/etc/shadow",
		"cat /proc/1/status",
		"grep root /proc/1/root/etc/shadow",
		"grep -f /etc/shadow /proc/1/status",
		"lsof -p 1 | grep -f /etc/shadow",
		"lsof -p 1 | grep -r 'x'",
		"timeout 1 cat /dev/../etc/shadow",
		"timeout 1 script -q -c 'cat /dev/pts/../../etc/shadow' /dev/null",
	}
	for _, cmd := range rejected {
		err := p.Validate(cmd)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("Validate(%q) = %v, want *ValidationError", cmd, err)
		}
	}
}

func TestNewPolicyCustomPatterns(t *testing.T) {
	p, err := NewPolicy([]string{`^who$`})
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	if err := p.Validate("who"); err != nil {
		t.Errorf("Validate(who) = %v", err)
	}
	if err := p.Validate("ps aux"); err == nil {
		t.Error("custom policy should not fall back to the default list")
	}

	if _, err := NewPolicy([]string{"("}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
