package app

// registry tracks which display name each connection identified as. The
// session service owns it and serialises every call.
type registry struct {
	byConn map[string]string
	byName map[string]string
	order  []string
}

func newRegistry() *registry {
	return &registry{
		byConn: make(map[string]string),
		byName: make(map[string]string),
	}
}

// identify binds name to conn. A name already bound to another connection
// moves to conn; the newest association wins.
func (r *registry) identify(conn, name string) {
	if prev, ok := r.byConn[conn]; ok {
		if prev == name {
			return
		}
		r.dropName(prev, conn)
	}
	if other, ok := r.byName[name]; ok && other != conn {
		delete(r.byConn, other)
	} else if !ok {
		r.order = append(r.order, name)
	}
	r.byConn[conn] = name
	r.byName[name] = conn
}

// forget reports whether conn had identified itself.
func (r *registry) forget(conn string) bool {
	name, ok := r.byConn[conn]
	if !ok {
		return false
	}
	delete(r.byConn, conn)
	r.dropName(name, conn)
	return true
}

func (r *registry) dropName(name, conn string) {
	if r.byName[name] != conn {
		return
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *registry) nameOf(conn string) (string, bool) {
	name, ok := r.byConn[conn]
	return name, ok
}

// count is the number of distinct identified names.
func (r *registry) count() int {
	return len(r.byName)
}

// names returns the checked-in names in the order they first arrived.
func (r *registry) names() []string {
	return append([]string{}, r.order...)
}

func (r *registry) reset() {
	r.byConn = make(map[string]string)
	r.byName = make(map[string]string)
	r.order = nil
}
