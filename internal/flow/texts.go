package flow

import (
	"strings"

	"github.com/avellano/avellano-bot/internal/models"
)

func lines(l ...string) string { return strings.Join(l, "\n") }

// Button labels. Triggers are matched against the lower-cased label.
const (
	btnAccept        = "✅ Acepto"
	btnReject        = "❌ No acepto"
	btnOrder         = "🛒 Pedido"
	btnRecipes       = "📖 Recetas"
	btnSupport       = "📞 Atención"
	btnCheckOrder    = "Consultar"
	btnHome          = "🏠 Hogar"
	btnBusiness      = "🏢 Negocios"
	btnPlaceOrder    = "🛒 Hacer pedido"
	btnCatalog       = "📋 Ver catálogo"
	btnBackToMenu    = "🔙 Volver menú"
	btnSendInfo      = "📝 Enviar información"
	btnFinish        = "✅ Finalizar"
	btnCancel        = "❌ Cancelar"
	btnAdvisor       = "Contactar asesor"
	btnGeneralInfo   = "Info general"
	btnMenu          = "Volver menú"
	btnLocation      = "📍 Ver ubicación"
	btnBranches      = "🏪 Ver sucursales"
	btnChicken       = "🐔 Recetas pollo"
	btnMeat          = "🥩 Recetas carnes"
	btnMyData        = "📋 Consultar datos"
	btnRevoke        = "❌ Revocar"
	btnPolicy        = "📄 Ver política"
	btnConfirmRevoke = "✅ Sí, revocar"
	btnStores        = "Tiendas"
	btnGrills        = "Asaderos"
	btnPremium       = "Restaurante premium"
	btnStandard      = "Restaurante estándar"
	btnWholesale     = "Mayoristas"
)

// ClosingText is sent when a conversation is closed for inactivity.
const ClosingText = "💛 Gracias por contactar a *Avellano*.\n¡Recuerda que alimentar es amar! 🐔\nTe esperamos pronto."

// ApologyText is sent when a turn fails.
const ApologyText = "❌ Ocurrió un error. Por favor intenta de nuevo."

var policyBody = lines(
	"📋 *POLÍTICA DE TRATAMIENTO DE DATOS PERSONALES*",
	"",
	"De acuerdo con la Ley 1581 de 2012 y el Decreto 1377 de 2013 sobre Habeas Data en Colombia, solicitamos tu autorización para:",
	"",
	"✅ *Recolectar y almacenar* tus datos personales (nombre, teléfono, dirección, ciudad)",
	"",
	"✅ *Utilizar* tu información para:",
	"  • Gestionar pedidos y entregas",
	"  • Enviarte actualizaciones de productos",
	"  • Mejorar nuestro servicio",
	"",
	"✅ *Compartir* tus datos únicamente con:",
	"  • Personal autorizado de Avellano",
	"  • Coordinadores de zona para entregas",
	"",
	"📌 *TUS DERECHOS:*",
	"• Conocer, actualizar y rectificar tus datos",
	"• Solicitar prueba de autorización",
	"• Ser informado sobre el uso de tus datos",
	"• Revocar autorización (Art. 8 Ley 1581/2012)",
	"• Presentar quejas ante la SIC",
	"",
	"🔒 Tus datos están protegidos y no serán vendidos ni compartidos con terceros no autorizados.",
)

func policyPrompt() models.OutboundMessage {
	return models.WithButtons(policyBody, btnAccept, btnReject)
}

func consentThanks(fromPolicies bool) models.OutboundMessage {
	if fromPolicies {
		return models.Text(lines(
			"✅ *Gracias por aceptar nuestras políticas*",
			"",
			"Ahora puedes continuar con tu registro.",
			"",
			"Recuerda que puedes ejercer tus derechos contactándonos en cualquier momento.",
		))
	}
	return models.Text(lines("✅ *Gracias por aceptar nuestras políticas*", "", "Ahora puedes continuar."))
}

func consentRejected(keyword string) models.OutboundMessage {
	return models.Text(lines(
		"❌ *No podemos continuar sin tu autorización*",
		"",
		"De acuerdo con la Ley 1581 de 2012, necesitamos tu consentimiento para procesar tus datos personales.",
		"",
		"⚠️ *Sin esta autorización:*",
		"• No podemos registrar tus pedidos",
		"• No podemos enviarte información",
		"• No podemos procesar entregas",
		"",
		"Si cambias de opinión, escribe *\""+keyword+"\"* para revisar y aceptar.",
		"",
		"Gracias por tu comprensión. 👋",
	))
}

var consentReprompt = models.Text(lines(
	"Por favor responde:",
	"✅ *\"Acepto\"* para autorizar",
	"❌ *\"No acepto\"* para rechazar",
))

func mainMenu() []models.OutboundMessage {
	return []models.OutboundMessage{
		models.WithButtons(lines(
			"👋 ¡Hola! Bienvenido(a) a Avellano",
			"",
			"Soy tu asistente virtual y estoy aquí para ayudarte.",
			"Por favor elige una opción para continuar:",
		), btnOrder, btnRecipes, btnSupport),
		models.WithButtons("¿Necesitas consultar el estado de tu pedido? Aquí puedes hacerlo:", btnCheckOrder),
	}
}

var customerKindPrompt = models.WithButtons(lines(
	"🛒 *¡Hagamos tu pedido!*",
	"",
	"Cuéntanos, ¿para quién es el pedido?",
), btnHome, btnBusiness)

var homeRegistered = models.WithButtons(lines(
	"🏠 *Pedido para el hogar*",
	"",
	"¡Perfecto! Tenemos pollo fresco y productos de la mejor calidad para tu familia. 💛",
	"",
	"¿Qué deseas hacer?",
), btnPlaceOrder, btnCatalog, btnBackToMenu)

var businessKinds = []models.OutboundMessage{
	models.WithButtons(lines(
		"🏢 *Clientes de negocio*",
		"",
		"Atendemos cada tipo de negocio con un asesor especializado.",
		"Elige el tipo de tu negocio:",
	), btnStores, btnGrills, btnWholesale),
	models.WithButtons("Restaurantes:", btnPremium, btnStandard),
}

var businessKindText = map[models.CustomerType]string{
	models.CustomerStore: lines(
		"🏪 *Tiendas*",
		"",
		"Surtimos tu tienda con pollo entero, presas y huevos con entregas frecuentes.",
		"Tu pedido lo atiende nuestro Director Comercial.",
	),
	models.CustomerGrillHouse: lines(
		"🔥 *Asaderos*",
		"",
		"Pollo seleccionado con el calibre ideal para asar, con precios especiales por volumen.",
		"Tu pedido lo atiende nuestro Director Comercial.",
	),
	models.CustomerPremiumRestaurant: lines(
		"🍽️ *Restaurante premium*",
		"",
		"Cortes especiales y porcionados a la medida de tu carta.",
		"Tu pedido lo atiende nuestro Ejecutivo Horecas.",
	),
	models.CustomerStandardRestaurant: lines(
		"🍴 *Restaurante estándar*",
		"",
		"Presas y pollo entero con entregas programadas para tu cocina.",
		"Tu pedido lo atiende nuestro Ejecutivo Horecas.",
	),
	models.CustomerWholesaler: lines(
		"📦 *Mayoristas*",
		"",
		"Despachos por volumen con listas de precios especiales.",
		"Tu pedido lo atiende nuestro Coordinador Mayoristas.",
	),
}

func businessKindMessage(t models.CustomerType) models.OutboundMessage {
	return models.WithButtons(lines(businessKindText[t], "", "Para registrarte envíanos la información de tu negocio."), btnSendInfo)
}

var businessDataPrompt = models.Text(lines(
	"📝 *Registro de negocio*",
	"",
	"Envíanos en un solo mensaje, separados por comas o en líneas:",
	"",
	"1. Nombre del negocio",
	"2. Ciudad",
	"3. Dirección",
	"4. Persona de contacto",
	"5. Productos de interés (opcional)",
	"",
	"Ejemplo: Asadero El Sol, Bogotá, Calle 10 # 5-20, Ana Pérez, pollo entero",
))

var businessDataReprompt = models.Text(lines(
	"⚠️ Necesitamos al menos nombre del negocio, ciudad, dirección y persona de contacto.",
	"",
	"Por favor envíalos separados por comas o en líneas.",
))

func businessRegistered(name string) models.OutboundMessage {
	return models.WithButtons(lines(
		"✅ *¡Registro exitoso!*",
		"",
		"Gracias, *"+name+"*. Un asesor se comunicará contigo pronto.",
		"",
		"Ya puedes hacer tu pedido:",
	), btnPlaceOrder)
}

var orderItemsHelp = lines(
	"✍️ Escribe tu pedido con un producto por línea, indicando la cantidad:",
	"",
	"Ejemplo:",
	"2 pollo entero",
	"1 pechuga",
	"",
	"Escribe *cancelar* para salir.",
)

var noDraft = models.WithButtons("No tienes un pedido en curso.", btnPlaceOrder)

var draftCanceled = models.WithButtons(lines("❌ *Pedido cancelado*", "", "Puedes empezar de nuevo cuando quieras."), btnMenu)

func orderConfirmed(o *models.Order) models.OutboundMessage {
	return models.WithButtons(lines(
		"✅ *¡Pedido recibido!*",
		"",
		"📦 Código: *"+o.Code+"*",
		"💰 Total: "+formatCOP(o.Total),
		"👤 Te atiende: "+o.CoordinatorName,
		"",
		"Te avisaremos cuando tu pedido esté en proceso. Puedes consultar su estado escribiendo *consultar*.",
	), btnCheckOrder, btnMenu)
}

var advisorText = models.WithButtons(lines(
	"🤝 Perfecto, un asesor comercial se comunicará contigo pronto.",
	"",
	"Horario de atención:",
	"📅 Lun-Vie: 8:00 AM - 6:00 PM",
	"📅 Sábados: 8:00 AM - 2:00 PM",
	"",
	"También puedes llamarnos al: 📞 310-232-5151",
), btnMenu)

var findUs = models.WithButtons(lines(
	"📍 *Encuéntranos*",
	"",
	"¿Qué deseas consultar?",
), btnLocation, btnBranches, btnMenu)

var locationText = models.WithButtons(lines(
	"📍 *Planta principal Avellano*",
	"",
	"Km 2 vía Mosquera - Funza, Cundinamarca",
	"🕒 Lun-Vie: 8:00 AM - 6:00 PM",
	"🕒 Sábados: 8:00 AM - 2:00 PM",
), btnBranches, btnMenu)

var branchesText = models.WithButtons(lines(
	"🏪 *Nuestras sucursales*",
	"",
	"• Bogotá - Calle 13 # 68-40",
	"• Soacha - Autopista Sur # 32-15",
	"• Funza - Carrera 9 # 15-60",
	"",
	"📞 310-232-5151",
), btnLocation, btnMenu)

var recipesMenu = models.WithButtons(lines(
	"📖 *Recetas Avellano*",
	"",
	"¿Qué te gustaría cocinar hoy?",
), btnChicken, btnMeat)

var staticRecipes = map[string]string{
	"pollo": lines(
		"🐔 *Pollo al horno con finas hierbas*",
		"",
		"Ingredientes: 1 pollo entero Avellano, 3 dientes de ajo, romero, tomillo, limón, sal y pimienta.",
		"",
		"1. Adoba el pollo con ajo, hierbas, limón, sal y pimienta.",
		"2. Deja reposar 30 minutos.",
		"3. Hornea a 200 °C por 1 hora y 15 minutos.",
		"",
		"¡Buen provecho! 💛",
	),
	"carnes": lines(
		"🥩 *Costillas BBQ*",
		"",
		"Ingredientes: 1 kg de costilla de cerdo, salsa BBQ, panela, ajo, sal y pimienta.",
		"",
		"1. Cocina las costillas en agua con ajo por 40 minutos.",
		"2. Báñalas con salsa BBQ y panela rallada.",
		"3. Dóralas al horno o a la parrilla por 20 minutos.",
		"",
		"¡Buen provecho! 💛",
	),
}

var supportMenu = []models.OutboundMessage{
	models.WithButtons(lines(
		"📞 *Atención al Cliente - Avellano*",
		"",
		"¡Estamos aquí para ayudarte! 💛",
		"",
		"¿Cómo podemos asistirte hoy?",
	), btnAdvisor, btnGeneralInfo),
	models.WithButtons("Más opciones:", btnMenu),
}

var generalInfo = models.WithButtons(lines(
	"ℹ️ *Información General - Avellano*",
	"",
	"🐔 Somos una empresa colombiana dedicada a ofrecer productos de la más alta calidad.",
	"",
	"📞 Línea de atención: 310-232-5151",
	"📧 Email: info@avellano.com",
	"📱 Instagram: @AvellanoColombia",
	"",
	"🕒 Horario:",
	"Lun-Vie: 8:00 AM - 6:00 PM",
	"Sábados: 8:00 AM - 2:00 PM",
), btnAdvisor, btnMenu)

var myDataMenu = []models.OutboundMessage{
	models.WithButtons(lines(
		"🔒 *Protección de Datos Personales*",
		"",
		"De acuerdo con la Ley 1581 de 2012, tienes derecho a:",
		"",
		"📋 *Consultar* tus datos guardados",
		"🔄 *Actualizar* tu información",
		"❌ *Revocar* tu autorización",
		"📄 *Ver* la política de privacidad",
		"",
		"¿Qué deseas hacer?",
	), btnMyData, btnRevoke, btnPolicy),
	models.WithButtons("Más opciones:", btnMenu),
}

var noStoredData = models.Text("No tenemos datos registrados con este número.")

var revokeConfirm = models.WithButtons(lines(
	"⚠️ *REVOCAR AUTORIZACIÓN DE TRATAMIENTO DE DATOS*",
	"",
	"Si revocas tu autorización:",
	"• Tus datos quedarán inactivos",
	"• No podrás hacer pedidos",
	"• Dejarás de recibir información",
	"",
	"¿Estás seguro de continuar?",
), btnConfirmRevoke, btnCancel)

var revoked = models.Text(lines(
	"✅ *Autorización revocada exitosamente*",
	"",
	"Tus datos han sido marcados como inactivos y no serán utilizados.",
	"",
	"Conservaremos un registro mínimo por obligaciones legales (facturación, etc.) según el Art. 21 de la Ley 1581.",
	"",
	"Si deseas eliminar completamente tus datos, contacta:",
	"protecciondatos@avellano.com",
))

var revokeNoData = models.Text("No encontramos datos registrados con este número.")

var revokeCanceled = models.Text(lines(
	"❌ *Cancelado*",
	"",
	"Tu autorización sigue activa.",
	"Tus datos continúan protegidos. 🔒",
))

var noOrders = models.WithButtons("No tienes pedidos registrados todavía.", btnPlaceOrder, btnMenu)
