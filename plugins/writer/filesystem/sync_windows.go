//go:build windows

package filesystem

// Windows 下目录无法 fsync，空操作。
func syncDir(string) error { return nil }
