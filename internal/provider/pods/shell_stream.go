package pods

import "io"

// podShellStream adapts client-go's StreamOptions (separate io.Reader for
// stdin, io.Writer for stdout) to the provider.ShellStream Read/Write
// interface expected by internal/shell, using an in-process pipe on each
// side.
type podShellStream struct {
	stdinReader  *io.PipeReader
	stdinWriter  *io.PipeWriter
	stdoutReader *io.PipeReader
	stdoutWriter *io.PipeWriter
}

func newPodShellStream() *podShellStream {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	return &podShellStream{stdinReader: inR, stdinWriter: inW, stdoutReader: outR, stdoutWriter: outW}
}

func (s *podShellStream) Write(p []byte) (int, error) { return s.stdinWriter.Write(p) }
func (s *podShellStream) Read(p []byte) (int, error)  { return s.stdoutReader.Read(p) }

func (s *podShellStream) Close() error {
	_ = s.stdinWriter.Close()
	_ = s.stdoutWriter.Close()
	return nil
}
