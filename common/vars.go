package common

// Version is set at build time with -ldflags "-X github.com/ruteri/collection-factory/common.Version=...".
var Version = "dev"

const PackageName = "collection-factory"
