package devserver

const (
	liveReloadPath       = "/__livereload"
	liveReloadScriptPath = "/__livereload.js"
	statusPath           = "/__status"
	metricsPath          = "/metrics"
)

// liveReloadScript re-fetches stylesheets in place on styles events and
// reloads the page for everything else.
const liveReloadScript = `(() => {
  if (window.__ASSETPIPE_LR__) return;
  window.__ASSETPIPE_LR__ = true;
  let current = null;
  function refreshStyles(hash) {
    document.querySelectorAll('link[rel="stylesheet"]').forEach((link) => {
      const url = new URL(link.href, location.href);
      if (url.origin !== location.origin) return;
      url.searchParams.set('lr', hash);
      link.href = url.toString();
    });
  }
  function connect() {
    const es = new EventSource('` + liveReloadPath + `');
    es.onmessage = (e) => {
      let p;
      try { p = JSON.parse(e.data); } catch (_) { return; }
      if (!p.hash || p.hash === current) return;
      const first = current === null;
      current = p.hash;
      if (first) return;
      if (p.category === 'styles') { refreshStyles(p.hash); return; }
      console.log('[assetpipe] ' + (p.category || 'change') + ' updated, reloading');
      location.reload();
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();
`
