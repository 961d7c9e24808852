package config

// Version is the application version, stamped into the User-Agent and the
// version command. Overridden at release time via
// -ldflags "-X wna/config.Version=x.y.z".
var Version = "0.9.0"
