package ratel

func (r *T) Close() (err er) {
	chk.E(r.DB.Sync())
	log.I.F("closing database %s", r.Path())
	if r.Flatten {
		if err = r.DB.Flatten(4); chk.E(err) {
			return
		}
		log.D.F("database flattened")
	}
	if err = r.DB.Close(); chk.E(err) {
		return
	}
	log.I.F("database closed")
	return
}

// Sync flushes the database to disk.
func (r *T) Sync() (err er) { return r.DB.Sync() }
