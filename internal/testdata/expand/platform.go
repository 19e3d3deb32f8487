package platform

import "fmt"

// Separator returns the path list separator for the target platform.
func Separator() string {
	//cfg:match
	//cfg:case windows
	return ";"
	//cfg:case unix
	return ":"
	//cfg:case js || wasip1
	return ":"
	//cfg:end
}

// Describe reports a coarse platform description.
func Describe() string {
	var arch string
	//cfg:match
	//cfg:case amd64 || arm64
	arch = "64-bit"
	//cfg:default
	arch = "other"
	//cfg:end

	//cfg:match
	//cfg:case linux
	{
		//cfg:match
		//cfg:case cgo
		return fmt.Sprintf("linux/%s (cgo)", arch)
		//cfg:default
		return fmt.Sprintf("linux/%s", arch)
		//cfg:end
	}
	//cfg:case darwin
	return "darwin/" + arch
	//cfg:default
	return "unknown/" + arch
	//cfg:end
}
