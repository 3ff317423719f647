package validator

import (
	"sort"
	"strings"
)

// DefaultCommands is the allowed set used when the configuration names none.
// Privilege escalation and commands that alter the host (sudo, su, passwd,
// useradd, shutdown, reboot, mkfs, fdisk, mount, umount, iptables, kill,
// killall) are deliberately absent.
var DefaultCommands = []string{
	"ls", "echo", "cat", "grep", "awk", "sed", "cut", "sort", "uniq",
	"wc", "head", "tail", "find", "date", "pwd", "whoami", "uname", "mkdir",
	"rmdir", "touch", "cp", "mv", "less", "more", "diff",
	"tar", "gzip", "gunzip", "zip", "unzip", "ping", "curl", "wget",
	"dpkg", "python", "python3", "g++", "gcc", "node", "javac", "java",
	"ruby", "df", "du", "free", "top", "uptime", "ps", "id",
	"hostname", "cal", "man", "bc", "time", "xargs", "tr", "chmod",
	"tee", "split", "dmesg", "iostat", "vmstat", "sar", "lsof", "who",
	"last", "blkid", "ifconfig", "netstat", "ss", "traceroute", "which",
	"locate", "factor", "yes", "history", "printf", "stat", "file",
	"basename", "dirname", "seq", "nproc", "lscpu",
}

// AllowedCommandSet is an immutable set of permitted command names. The zero
// value allows nothing.
type AllowedCommandSet struct {
	names map[string]struct{}
}

// NewAllowedCommandSet copies names into a new set. Blank entries are dropped.
func NewAllowedCommandSet(names []string) AllowedCommandSet {
	set := AllowedCommandSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		set.names[n] = struct{}{}
	}
	return set
}

// Contains reports whether name is allowed.
func (s AllowedCommandSet) Contains(name string) bool {
	_, ok := s.names[name]
	return ok
}

func (s AllowedCommandSet) Len() int { return len(s.names) }

// Names returns the allowed names sorted.
func (s AllowedCommandSet) Names() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
