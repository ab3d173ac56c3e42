package rules

import "embed"

// Embedded carries the rule sets compiled into the binary, sufficient for
// standard profile devices without any operator supplied rules.
//
//go:embed definitions
var Embedded embed.FS
