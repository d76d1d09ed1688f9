package workerrun

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/xerrors"
)

// RsyncUploader pushes a compressed log archive to a remote host over
// rsync-over-ssh. It returns the resulting rsync:// style URL the
// coordinator's dashboard can link to.
type RsyncUploader struct {
	Host       string
	RemoteDir  string
	SSHKeyPath string
}

// NewRsyncUploader builds an uploader, or nil if host is empty (log
// archives then stay local, per Runner.archiveLog's fallback).
func NewRsyncUploader(host, remoteDir, sshKeyPath string) *RsyncUploader {
	if host == "" {
		return nil
	}
	return &RsyncUploader{Host: host, RemoteDir: remoteDir, SSHKeyPath: sshKeyPath}
}

func (u *RsyncUploader) Upload(ctx context.Context, fileName string, gzipBody []byte) (string, error) {
	tmp, err := os.CreateTemp("", "buildit-log-*.txt.gz")
	if err != nil {
		return "", xerrors.Errorf("staging log archive: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()
	if _, err := tmp.Write(gzipBody); err != nil {
		return "", xerrors.Errorf("writing staged log archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", xerrors.Errorf("closing staged log archive: %w", err)
	}

	args := []string{"-az"}
	if u.SSHKeyPath != "" {
		args = append(args, "-e", "ssh -i "+u.SSHKeyPath)
	}
	remote := u.Host + ":" + filepath.Join(u.RemoteDir, fileName)
	args = append(args, tmp.Name(), remote)

	cmd := exec.CommandContext(ctx, "rsync", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", xerrors.Errorf("rsync %v: %w (%s)", cmd.Args, err, string(out))
	}

	return "rsync://" + u.Host + "/" + filepath.Join(u.RemoteDir, fileName), nil
}
