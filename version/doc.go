// Package version reports the build of the running boundguard binary.
//
// Version, commit, branch and build time are set with -ldflags; when they
// are not, the VCS stamps of the embedded build info are used instead.
//
//	go build -ldflags "-X github.com/kbukum/boundguard/version.Version=v1.0.0" ./cmd/boundguard
package version
