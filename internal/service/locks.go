package service

import "sync"

// keyedMutex сериализует операции по ключу (id контрибуции):
// два конкурентных перехода состояния одной контрибуции не могут
// перемежаться, операции над разными контрибуциями идут параллельно.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		locks: make(map[string]*lockEntry),
	}
}

// Lock захватывает мьютекс для ключа и возвращает функцию освобождения.
// Счётчик ссылок нужен, чтобы map не рос бесконечно: запись удаляется,
// когда последний владелец отпустил ключ.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, exists := k.locks[key]
	if !exists {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
