package approval

import (
	"path/filepath"
	"strings"
)

// dangerousBashSubstrings is the enumerated list from spec.md §4.3, matched
// as substrings of the command.
var dangerousBashSubstrings = []string{
	// destructive
	"rm -rf", "rm -r /", "rm -f", "rmdir",
	// privilege
	"sudo ", "su -", "doas ",
	// permissions
	"chmod 777", "chmod -R", "chown -R",
	// RCE
	"curl | sh", "curl | bash", "wget | sh", "wget | bash", "curl -s | sh", "wget -O - |",
	// system
	"> /dev/", "dd if=", "mkfs.", ":(){:|:&};:",
	// package managers
	"pip install", "pip3 install", "npm i -g", "npm install -g", "brew install", "apt install", "apt-get install", "yum install",
	// git destructive
	"git push -f", "git push --force", "git reset --hard",
	// signals
	"kill -9", "killall", "pkill",
}

// safeBashPrefixes is the enumerated list from spec.md §4.3.
var safeBashPrefixes = []string{
	"ls", "pwd", "cat ", "head ", "tail ", "grep ", "find ", "wc ", "diff ",
	"git status", "git log", "git diff", "git branch", "echo ", "which ", "type ", "file ",
}

// IsDangerousBash reports whether command contains any dangerous substring.
func IsDangerousBash(command string) bool {
	for _, s := range dangerousBashSubstrings {
		if strings.Contains(command, s) {
			return true
		}
	}
	return false
}

// IsSafeBash reports whether command starts with any of the safe prefixes.
func IsSafeBash(command string) bool {
	trimmed := strings.TrimSpace(command)
	for _, p := range safeBashPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

var sensitiveExactNames = map[string]bool{
	".env": true, ".env.local": true, ".env.production": true, ".env.development": true,
	".netrc": true, ".npmrc": true, ".pypirc": true,
	"id_rsa": true, "id_dsa": true, "id_ecdsa": true, "id_ed25519": true,
	"credentials.json": true, "credentials.yaml": true,
	"secrets.json": true, "secrets.yaml": true, "secrets.yml": true,
	".htpasswd": true, ".htaccess": true,
	"shadow": true, "passwd": true,
	"private_key": true, "privatekey": true,
	"service_account": true, "service-account": true,
	"token.json": true,
	"keystore.jks": true,
	".pgpass": true, ".my.cnf": true,
}

var sensitiveExtensions = []string{
	".pem", ".key", ".p12", ".pfx", ".jks", ".keystore", ".secret", ".secrets", ".cert", ".crt", ".cer",
}

// IsSensitiveFile implements spec.md §4.3's sensitive-file predicate: an
// name match (case-insensitive, exact or substring for every entry, so
// "prod.env" matches ".env"), an extension match, or an
// AWS-credential-shaped filename.
func IsSensitiveFile(path string) bool {
	name := strings.ToLower(filepath.Base(path))

	for exact := range sensitiveExactNames {
		if name == exact {
			return true
		}
		if !strings.HasPrefix(exact, ".") && strings.Contains(name, exact) {
			return true
		}
		if strings.HasPrefix(exact, ".") && strings.Contains(name, exact) {
			return true
		}
	}

	ext := strings.ToLower(filepath.Ext(name))
	for _, se := range sensitiveExtensions {
		if ext == se {
			return true
		}
	}

	if strings.Contains(name, "aws") && (strings.Contains(name, "credential") || strings.Contains(name, "config")) {
		return true
	}

	return false
}

// IsExternal implements spec.md §4.3's external-path test: a path is
// external iff, after canonicalisation, it is not equal to projectRoot and
// does not begin with projectRoot+separator — a full path-component
// boundary check, not a raw string prefix (spec.md §9: "/repo" vs
// "/repo_evil"). candidate is resolved to absolute against projectRoot
// first, since a relative candidate (the common case for in-tree tool
// calls) can't otherwise be compared against an absolute root.
func IsExternal(projectRoot, candidate string) bool {
	root := filepath.Clean(projectRoot)
	path := candidate
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	if path == root {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return true
	}
	if rel == "." {
		return false
	}
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
