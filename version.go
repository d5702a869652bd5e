package clara

// Version is the release of the module, set at build time with
// -ldflags "-X github.com/aretw0/clara.Version=v1.2.3".
var Version = "dev"
