package providers

import (
	"github.com/smallbiznis/qrpay/internal/providers/pdf"
	"github.com/smallbiznis/qrpay/internal/providers/qrcode"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	pdf.Module,
	qrcode.Module,
)
