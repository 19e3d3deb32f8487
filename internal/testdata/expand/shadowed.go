package shadowed

func fooBar() bool {
	//cfg:match
	//cfg:case foo
	return false
	//cfg:case bar
	return false
	//cfg:default
	return true
	//cfg:end
}

func works2() bool {
	//cfg:match
	//cfg:case foo
	return false
	//cfg:case test
	return true
	//cfg:case test && bar
	return false
	//cfg:default
	return false
	//cfg:end
}

func works4() *uint32 {
	//cfg:match
	//cfg:case test
	one := uint32(1)
	return &one
	//cfg:end
}
