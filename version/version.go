package version

// Version is set at build time with -ldflags "-X ...version.Version=vX.Y.Z".
var Version = "version is set by build process"
