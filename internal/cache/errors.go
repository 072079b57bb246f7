package cache

import (
	"errors"
	"fmt"
)

// Errores sentinel del cache. "No existe" nunca es un error: tanto el
// fetcher como Get lo expresan con un resultado nil.
var (
	// ErrInvalidKey indica componentes de key inválidos (tenant/id vacíos,
	// tipo desconocido, encoding corrupto).
	ErrInvalidKey = errors.New("cache: invalid key")

	// ErrBackendUnavailable marca fallas de I/O del backend. El cache degrada
	// a always-fetch, no propaga esto en el path de lectura.
	ErrBackendUnavailable = errors.New("cache: backend unavailable")
)

// FetchKind clasifica las fallas del StorageFetcher.
type FetchKind uint8

const (
	FetchTransientIO FetchKind = iota
	FetchPermissionDenied
	FetchSerialization
)

func (k FetchKind) String() string {
	switch k {
	case FetchTransientIO:
		return "transient_io"
	case FetchPermissionDenied:
		return "permission_denied"
	case FetchSerialization:
		return "serialization"
	default:
		return fmt.Sprintf("fetch_kind(%d)", uint8(k))
	}
}

// FetchError es una falla del system of record al resolver un miss.
// "No existe" no es un FetchError: el fetcher devuelve (nil, nil).
type FetchError struct {
	Kind FetchKind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s", e.Kind)
	}
	return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError construye un FetchError envolviendo la causa.
func NewFetchError(kind FetchKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}

// FetchFailedError envuelve el FetchError al propagarlo al caller de Get.
// El cache no reintenta: la política de retry es del fetcher o su caller.
type FetchFailedError struct {
	Err error
}

func (e *FetchFailedError) Error() string { return fmt.Sprintf("cache: fetch failed: %v", e.Err) }
func (e *FetchFailedError) Unwrap() error { return e.Err }

// IsFetchFailed reporta si err viene del upstream fetch y no del cache.
func IsFetchFailed(err error) bool {
	var fe *FetchFailedError
	return errors.As(err, &fe)
}
