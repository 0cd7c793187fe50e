package sl

import (
	"log/slog"
)

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

func UserID(id int64) slog.Attr {
	return slog.Int64("user", id)
}

func VendorID(id int64) slog.Attr {
	return slog.Int64("vendor", id)
}
