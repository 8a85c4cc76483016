package cache

import "fmt"

type ErrItemLocked struct {
	key interface{}
}

func (e *ErrItemLocked) Error() string {
	return fmt.Sprintf("size_cache: item is locked, key: %#v", e.key)
}

type ErrItemAlreadyExists struct {
	key interface{}
}

func (e *ErrItemAlreadyExists) Error() string {
	return fmt.Sprintf("size_cache: item already exists, key: %#v", e.key)
}
