package vfs

// StatEntry is a full-replacement snapshot of a path's status metadata as
// of some timestamp. Zero fields mean the legacy record did not carry the
// value.
type StatEntry struct {
	Mode          uint64 `json:"st_mode,omitempty"`
	Size          int64  `json:"st_size,omitempty"`
	UID           int64  `json:"st_uid,omitempty"`
	GID           int64  `json:"st_gid,omitempty"`
	ATimeMicros   int64  `json:"st_atime,omitempty"`
	MTimeMicros   int64  `json:"st_mtime,omitempty"`
	CTimeMicros   int64  `json:"st_ctime,omitempty"`
	SymlinkTarget string `json:"symlink,omitempty"`
}

// HashEntry is a full-replacement snapshot of a path's content digests as
// of some timestamp. Any digest may be absent independently of the others.
type HashEntry struct {
	MD5    []byte `json:"md5,omitempty"`
	SHA1   []byte `json:"sha1,omitempty"`
	SHA256 []byte `json:"sha256,omitempty"`
}

// Empty reports whether no digest is set.
func (h *HashEntry) Empty() bool {
	return len(h.MD5) == 0 && len(h.SHA1) == 0 && len(h.SHA256) == 0
}
