package meta

import "github.com/mewkiz/flac/internal/bitio"

// RegisteredApplications maps a registered 4-byte application ID to a
// human-readable description.
//
// ref: https://www.xiph.org/flac/id.html
var RegisteredApplications = map[string]string{
	"ATCH": "FlacFile",
	"BSOL": "beSolo",
	"BUGS": "Bugs Player",
	"Cues": "GoldWave cue points",
	"Fica": "CUE Splitter",
	"Ftol": "flac-tools",
	"MOTB": "MOTB MetaCzar",
	"MPSE": "MP3 Stream Editor",
	"MuML": "MusicML: Music Metadata Language",
	"RIFF": "Sound Devices RIFF chunk storage",
	"SFFL": "Sound Font FLAC",
	"SONY": "Sony Creative Software",
	"SQEZ": "flacsqueeze",
	"TtWv": "TwistedWave",
	"UITS": "UITS Embedding tools",
	"aiff": "FLAC AIFF chunk storage",
	"imag": "flac-image",
	"peem": "Parseable Embedded Extensible Metadata",
	"qfst": "QFLAC Studio",
	"riff": "FLAC RIFF chunk storage",
	"tune": "TagTuner",
	"xbat": "XBAT",
	"xmcd": "xmcd",
}

// Application is third-party-defined data keyed by a registered 4-byte ID.
type Application struct {
	ID   [4]byte
	Data []byte
}

func decodeApplication(r *bitio.Reader, length int) (*Application, error) {
	app := new(Application)
	if err := r.ReadByteBlockAlignedNoCRC(app.ID[:]); err != nil {
		return nil, err
	}
	app.Data = make([]byte, length-4)
	if err := r.ReadByteBlockAlignedNoCRC(app.Data); err != nil {
		return nil, err
	}
	return app, nil
}

func encodeApplication(w *bitio.Writer, app *Application) error {
	if err := w.WriteByteBlock(app.ID[:]); err != nil {
		return err
	}
	return w.WriteByteBlock(app.Data)
}
