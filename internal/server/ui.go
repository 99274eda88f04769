package server

const uiPage = `<!doctype html><html><head><title>HAL</title>
<style>body{font-family:system-ui;max-width:900px;margin:2rem auto;padding:0 1rem}textarea{width:100%;height:260px}</style>
</head><body>
<h1>HAL</h1>
<p>Paste a URL and run extraction.</p>
<input id='url' style='width:70%' value='https://example.com'/>
<select id='mode'><option>auto</option><option>dom</option><option>vision</option></select>
<label><input type='checkbox' id='visual'/> visual</label>
<button onclick='run()'>Browse</button>
<pre id='meta'></pre>
<textarea id='out'></textarea>
<script>
async function run(){
  const url=document.getElementById('url').value;
  const mode=document.getElementById('mode').value;
  const visual_extraction=document.getElementById('visual').checked;
  const res=await fetch('/browse',{method:'POST',headers:{'content-type':'application/json'},body:JSON.stringify({url,mode,visual_extraction})});
  const data=await res.json();
  if(!res.ok){
    document.getElementById('meta').textContent=res.status+' '+(data.detail||'');
    document.getElementById('out').value='';
    return;
  }
  document.getElementById('meta').textContent=JSON.stringify({title:data.title,method:data.method_used,confidence:data.confidence,warnings:data.warnings},null,2);
  document.getElementById('out').value=data.text_markdown||JSON.stringify(data,null,2);
}
</script>
</body></html>
`
