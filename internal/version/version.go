package version

// Version はビルド時に -ldflags で上書きされる
var Version = "2.1.0"
