// Package fs abstracts the host file system under file-backed disks.
//
//   - [LocalFS]: the os package
//   - [FaultyFS]: wraps another FileSystem and injects I/O errors
//
// Tests inject [FaultyFS] to make a disk transfer fail:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("disk1", fs.Fault{FailOnWrite: true})
//
// Operations take no context.Context; local pread/pwrite calls cannot be
// interrupted.
package fs
