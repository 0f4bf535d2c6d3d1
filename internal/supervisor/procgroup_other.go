//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package supervisor

import "os/exec"

func configureProcessGroup(_ *exec.Cmd) {}

func reapProcessGroup(int) {}
